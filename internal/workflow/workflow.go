package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"notaflow/internal"
	"notaflow/internal/config"
	"notaflow/internal/erp"
	"notaflow/internal/learning"
	"notaflow/internal/matching"
	"notaflow/internal/pipeline"
	"notaflow/internal/refstore"
	"notaflow/internal/units"
	"notaflow/internal/vision"
)

var (
	// ErrNoInvoice means the session was never given an invoice; the only
	// recovery is a fresh upload.
	ErrNoInvoice = errors.New("session has no invoice")

	// ErrUnresolved blocks submission while unmatched lines or an
	// unresolved supplier/buyer remain.
	ErrUnresolved = errors.New("invoice has unresolved lines or parties")

	// ErrNothingToUndo is returned when the undo stack is empty.
	ErrNothingToUndo = errors.New("no previous step to return to")
)

// Workflow drives the human correction loop over an enriched invoice and
// feeds confirmed corrections back into the learning store.
type Workflow struct {
	cfg       config.Config
	refs      *refstore.Store
	matcher   *matching.Matcher
	converter *units.Converter
	learned   *learning.Store
	enricher  *pipeline.Enricher
	erp       erp.Submitter
	log       logrus.FieldLogger
}

func New(cfg config.Config, refs *refstore.Store, matcher *matching.Matcher, converter *units.Converter, learned *learning.Store, enricher *pipeline.Enricher, submitter erp.Submitter, log logrus.FieldLogger) *Workflow {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Workflow{
		cfg:       cfg,
		refs:      refs,
		matcher:   matcher,
		converter: converter,
		learned:   learned,
		enricher:  enricher,
		erp:       submitter,
		log:       log,
	}
}

func (w *Workflow) NewSession() *Session {
	s := &Session{}
	s.reset()
	return s
}

// AttachDocument enriches a freshly extracted document into the session
// and moves to confirmation. Any previous invoice in the session is
// discarded.
func (w *Workflow) AttachDocument(s *Session, doc *vision.Document) error {
	inv, err := w.enricher.Enrich(doc)
	if err != nil {
		return err
	}
	s.reset()
	s.Invoice = inv
	s.State = StateConfirmation
	return nil
}

// CanSubmit reports whether the confirm-and-send action is available:
// every line matched, supplier resolved, buyer set.
func (w *Workflow) CanSubmit(s *Session) bool {
	if s.Invoice == nil {
		return false
	}
	inv := s.Invoice
	return inv.UnmatchedCount == 0 && inv.SupplierResolved() && inv.BuyerResolved()
}

func (w *Workflow) UnmatchedLines(s *Session) []int {
	if s.Invoice == nil {
		return nil
	}
	var out []int
	for i := range s.Invoice.Lines {
		if s.Invoice.Lines[i].Status == internal.StatusUnmatched {
			out = append(out, i)
		}
	}
	return out
}

// BeginSupplierSelection lists the supplier table for the front-end to
// render and moves the session into selection.
func (w *Workflow) BeginSupplierSelection(s *Session) ([]internal.Supplier, error) {
	if s.Invoice == nil {
		return nil, ErrNoInvoice
	}
	s.State = StateSelectSupplier
	return w.refs.Suppliers(), nil
}

func (w *Workflow) ChooseSupplier(s *Session, supplierID string) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	sup, ok := w.refs.SupplierByID(supplierID)
	if !ok {
		return fmt.Errorf("unknown supplier id %q", supplierID)
	}
	s.Invoice.SupplierID = sup.ID
	s.Invoice.SupplierName = sup.Name
	s.State = StateConfirmation
	return nil
}

func (w *Workflow) BeginBuyerEntry(s *Session) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	s.State = StateSetBuyer
	return nil
}

// SetBuyer keeps the buyer as free text and attaches a reference id when
// the buyer table recognizes the name.
func (w *Workflow) SetBuyer(s *Session, name string) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	s.Invoice.BuyerName = name
	s.Invoice.BuyerID = ""
	if id, _ := w.matcher.MatchBuyer(name); id != "" {
		s.Invoice.BuyerID = id
	}
	s.State = StateConfirmation
	return nil
}

func (w *Workflow) BeginItemSelection(s *Session) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	s.State = StateSelectItem
	return nil
}

// SelectItem snapshots the line list and enters editing of one line.
func (w *Workflow) SelectItem(s *Session, idx int) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	if idx < 0 || idx >= len(s.Invoice.Lines) {
		return fmt.Errorf("line %d out of range", idx)
	}
	s.snapshot()
	s.editIndex = idx
	s.State = StateEditItem
	return nil
}

func (w *Workflow) BeginManualName(s *Session) error {
	if _, err := w.editLine(s); err != nil {
		return err
	}
	s.State = StateManualNameEntry
	return nil
}

// ApplyManualName resolves a user-corrected name with the high "exists"
// threshold. On a hit the mapping is recorded from the ORIGINAL raw name
// so the same OCR misread auto-resolves next time, and the match is
// applied to the line. A miss moves to the add-new-item flow and returns
// false.
func (w *Workflow) ApplyManualName(s *Session, correctedName string) (bool, error) {
	line, err := w.editLine(s)
	if err != nil {
		return false, err
	}

	id, score := w.matcher.MatchWithThreshold(correctedName, w.cfg.ExistsThreshold)
	if id == "" {
		w.log.WithFields(logrus.Fields{"name": correctedName, "score": score}).Info("corrected name not in catalog")
		s.State = StateAddNewItem
		return false, nil
	}

	if err := w.learned.Record(line.RawName, id, correctedName); err != nil {
		w.log.WithError(err).Warn("mapping kept in memory only")
	}
	w.enricher.ApplyProduct(s.Invoice, s.editIndex, id)
	s.State = StateConfirmation
	return true, nil
}

// AddNewItem registers a genuinely new product under a synthetic id,
// learns the mapping from the line's raw name, and applies it.
func (w *Workflow) AddNewItem(s *Session, name string) (string, error) {
	line, err := w.editLine(s)
	if err != nil {
		return "", err
	}

	productID := uuid.New().String()
	w.refs.RegisterProduct(internal.Product{ID: productID, Name: name})
	if err := w.learned.Record(line.RawName, productID, name); err != nil {
		w.log.WithError(err).Warn("mapping kept in memory only")
	}
	w.enricher.ApplyProduct(s.Invoice, s.editIndex, productID)
	s.State = StateConfirmation
	return productID, nil
}

// AppendItem adds a line the OCR missed entirely. New lines are appended,
// never inserted, so existing line numbers stay stable.
func (w *Workflow) AppendItem(s *Session, item vision.Item) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	s.snapshot()
	s.Invoice.Lines = append(s.Invoice.Lines, w.enricher.EnrichLine(item))
	s.Invoice.Recount()
	s.State = StateConfirmation
	return nil
}

// LineEdit carries manual overwrites of line fields; nil fields are left
// untouched.
type LineEdit struct {
	Name     *string
	Quantity *float64
	Unit     *string
	Price    *float64
}

func (w *Workflow) UpdateLine(s *Session, edit LineEdit) error {
	line, err := w.editLine(s)
	if err != nil {
		return err
	}
	if edit.Name != nil {
		line.Name = *edit.Name
	}
	if edit.Quantity != nil {
		line.Quantity = *edit.Quantity
		line.ConversionApplied = false
		line.OriginalQuantity = 0
		line.OriginalUnit = ""
	}
	if edit.Unit != nil {
		line.Unit = *edit.Unit
		line.ConversionApplied = false
		line.OriginalQuantity = 0
		line.OriginalUnit = ""
	}
	if edit.Price != nil {
		line.Price = *edit.Price
	}
	w.enricher.ReEnrichLine(s.Invoice, s.editIndex)
	s.State = StateConfirmation
	return nil
}

func (w *Workflow) BeginConversion(s *Session) error {
	if _, err := w.editLine(s); err != nil {
		return err
	}
	s.State = StateSetConversionUnit
	return nil
}

// SetConversionTarget is step one of the two-step conversion entry.
func (w *Workflow) SetConversionTarget(s *Session, targetUnit string) error {
	if _, err := w.editLine(s); err != nil {
		return err
	}
	s.pendingUnit = targetUnit
	s.State = StateSetConversionFactor
	return nil
}

// SetConversionFactor completes the entry, records the factor and
// immediately re-applies enrichment to the in-flight line.
func (w *Workflow) SetConversionFactor(s *Session, factor float64) error {
	line, err := w.editLine(s)
	if err != nil {
		return err
	}
	if s.pendingUnit == "" {
		return errors.New("conversion target unit not set")
	}

	if err := w.converter.Record(line.ProductID, line.Unit, s.pendingUnit, factor); err != nil {
		return err
	}
	s.pendingUnit = ""
	w.enricher.ReEnrichLine(s.Invoice, s.editIndex)
	s.State = StateConfirmation
	return nil
}

// PreviousStep restores the line list as it was before the last edit
// began.
func (w *Workflow) PreviousStep(s *Session) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	lines, ok := s.popSnapshot()
	if !ok {
		return ErrNothingToUndo
	}
	s.Invoice.Lines = lines
	s.Invoice.Recount()
	s.pendingUnit = ""
	s.State = StateConfirmation
	return nil
}

// Confirm gates the move to final confirmation on a fully resolved
// invoice.
func (w *Workflow) Confirm(s *Session) error {
	if s.Invoice == nil {
		return ErrNoInvoice
	}
	if !w.CanSubmit(s) {
		return ErrUnresolved
	}
	s.State = StateFinalConfirmation
	return nil
}

// Submit sends the invoice to the ERP. Success clears the invoice from
// the session; failure keeps it so a retry needs no new photo.
func (w *Workflow) Submit(ctx context.Context, s *Session) (string, error) {
	if s.Invoice == nil {
		return "", ErrNoInvoice
	}
	if !w.CanSubmit(s) {
		return "", ErrUnresolved
	}

	documentID, err := w.erp.SubmitInvoice(ctx, s.Invoice)
	if err != nil {
		w.log.WithError(err).Error("submission failed, keeping invoice in session")
		s.State = StateFinalConfirmation
		return "", err
	}

	s.reset()
	s.State = StateDone
	return documentID, nil
}

// Cancel discards the session's invoice and history.
func (w *Workflow) Cancel(s *Session) {
	s.reset()
}

func (w *Workflow) editLine(s *Session) (*internal.InvoiceLine, error) {
	if s.Invoice == nil {
		return nil, ErrNoInvoice
	}
	if s.editIndex < 0 || s.editIndex >= len(s.Invoice.Lines) {
		return nil, errors.New("no line selected for editing")
	}
	return &s.Invoice.Lines[s.editIndex], nil
}
