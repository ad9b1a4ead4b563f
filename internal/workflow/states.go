package workflow

// State is where a correction session currently sits. The conversational
// front-end maps states to screens; the core only transitions between
// them.
type State int

const (
	StateAwaitingPhoto State = iota
	StateConfirmation
	StateSelectSupplier
	StateSetBuyer
	StateSelectItem
	StateEditItem
	StateManualNameEntry
	StateAddNewItem
	StateSetConversionUnit
	StateSetConversionFactor
	StateFinalConfirmation
	StateDone
)

var stateNames = map[State]string{
	StateAwaitingPhoto:       "awaiting_photo",
	StateConfirmation:        "confirmation",
	StateSelectSupplier:      "select_supplier",
	StateSetBuyer:            "set_buyer",
	StateSelectItem:          "select_item",
	StateEditItem:            "edit_item",
	StateManualNameEntry:     "manual_name_entry",
	StateAddNewItem:          "add_new_item",
	StateSetConversionUnit:   "set_conversion_unit",
	StateSetConversionFactor: "set_conversion_factor",
	StateFinalConfirmation:   "final_confirmation",
	StateDone:                "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
