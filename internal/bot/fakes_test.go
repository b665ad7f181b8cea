package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"freelancer-bot/internal/ai"
	"freelancer-bot/internal/payment"
	"freelancer-bot/internal/store"
	"freelancer-bot/internal/whatsapp"
	"freelancer-bot/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	_ Store     = (*store.MongoStore)(nil)
	_ Messenger = (*whatsapp.Client)(nil)
	_ NLU       = (*ai.Service)(nil)
)

const (
	clientPhone     = "966501234567"
	freelancerPhone = "966551112233"
)

type sentMessage struct {
	To      string
	Text    string
	Buttons []whatsapp.Button
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	read    []string
	typing  []string
	failFor map[string]error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{failFor: map[string]error{}}
}

func (m *fakeMessenger) SendMessage(_ context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[to]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{To: to, Text: text})
	return nil
}

func (m *fakeMessenger) SendInteractiveButtons(_ context.Context, to, body string, buttons []whatsapp.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[to]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{To: to, Text: body, Buttons: buttons})
	return nil
}

func (m *fakeMessenger) MarkAsRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.read = append(m.read, id)
	return nil
}

func (m *fakeMessenger) SendTypingIndicator(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing = append(m.typing, id)
	return nil
}

func (m *fakeMessenger) to(phone string) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.To == phone {
			out = append(out, s)
		}
	}
	return out
}

func (m *fakeMessenger) all() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu            sync.Mutex
	histories     map[string]*models.ChatHistory
	freelancers   []models.Freelancer
	conversations []models.Conversation
	notifications []models.Notification
	bridges       []*models.BridgeSession

	stateErr   error
	catalogErr error
}

func newFakeStore(freelancers ...models.Freelancer) *fakeStore {
	return &fakeStore{histories: map[string]*models.ChatHistory{}, freelancers: freelancers}
}

func (s *fakeStore) record(phone string) *models.ChatHistory {
	h, ok := s.histories[phone]
	if !ok {
		h = &models.ChatHistory{PhoneNumber: phone}
		s.histories[phone] = h
	}
	return h
}

func (s *fakeStore) AppendMessage(_ context.Context, phone, userName string, entry models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.record(phone)
	if userName != "" {
		h.UserName = userName
	}
	h.Messages = append(h.Messages, entry)
	return nil
}

func (s *fakeStore) GetHistory(_ context.Context, phone string) (*models.ChatHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := *s.record(phone)
	h.Messages = append([]models.HistoryEntry(nil), h.Messages...)
	return &h, nil
}

func (s *fakeStore) ClearHistory(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(phone).Messages = nil
	return nil
}

func (s *fakeStore) RemoveMessagesContaining(_ context.Context, phone, substr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.record(phone)
	kept := h.Messages[:0]
	for _, m := range h.Messages {
		if !strings.Contains(m.Content, substr) {
			kept = append(kept, m)
		}
	}
	h.Messages = kept
	return nil
}

func (s *fakeStore) GetPaymentState(_ context.Context, phone string) (models.PaymentState, *models.PaymentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateErr != nil {
		return "", nil, s.stateErr
	}
	h, ok := s.histories[phone]
	if !ok {
		return models.PaymentStateNormal, nil, nil
	}
	return h.State(), h.PaymentInfo, nil
}

func (s *fakeStore) SetAwaitingPayment(_ context.Context, phone string, info models.PaymentInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.record(phone)
	h.PaymentState = models.PaymentStateAwaitingPayment
	h.PaymentInfo = &info
	return nil
}

func (s *fakeStore) ClearPaymentState(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.record(phone)
	h.PaymentState = models.PaymentStateNormal
	h.PaymentInfo = nil
	return nil
}

func (s *fakeStore) ClearPaymentStateForInvoice(_ context.Context, phone, invoiceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[phone]
	if !ok || h.State() != models.PaymentStateAwaitingPayment || h.PaymentInfo == nil || h.PaymentInfo.InvoiceID != invoiceID {
		return false, nil
	}
	h.PaymentState = models.PaymentStateNormal
	h.PaymentInfo = nil
	return true, nil
}

func (s *fakeStore) FindByInvoiceID(_ context.Context, invoiceID string) (*models.ChatHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.histories {
		if h.PaymentInfo != nil && h.PaymentInfo.InvoiceID == invoiceID {
			cp := *h
			info := *h.PaymentInfo
			cp.PaymentInfo = &info
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) ExpirePayment(_ context.Context, phone string, info models.PaymentInfo) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[phone]
	if !ok || h.State() != models.PaymentStateAwaitingPayment || h.PaymentInfo == nil || h.PaymentInfo.InvoiceID != info.InvoiceID {
		return false, nil
	}
	h.PaymentState = models.PaymentStateNormal
	h.PaymentInfo = nil
	h.ExpiredPayments = append(h.ExpiredPayments, info)
	return true, nil
}

func (s *fakeStore) ClaimExpiredPayment(_ context.Context, invoiceID string) (*models.ChatHistory, *models.PaymentInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.histories {
		info := h.ExpiredPayment(invoiceID)
		if info == nil {
			continue
		}
		cp := *h
		kept := make([]models.PaymentInfo, 0, len(h.ExpiredPayments))
		for _, p := range h.ExpiredPayments {
			if p.InvoiceID != invoiceID {
				kept = append(kept, p)
			}
		}
		h.ExpiredPayments = kept
		return &cp, info, nil
	}
	return nil, nil, nil
}

func (s *fakeStore) FindExpiredPayments(_ context.Context, now time.Time) ([]models.ChatHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChatHistory
	for _, h := range s.histories {
		if h.State() == models.PaymentStateAwaitingPayment && h.PaymentInfo.Expired(now) {
			cp := *h
			info := *h.PaymentInfo
			cp.PaymentInfo = &info
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListFreelancers(_ context.Context, limit int) ([]models.Freelancer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && len(s.freelancers) > limit {
		return append([]models.Freelancer(nil), s.freelancers[:limit]...), nil
	}
	return append([]models.Freelancer(nil), s.freelancers...), nil
}

func (s *fakeStore) FindFreelancersByCategory(_ context.Context, category string, limit int) ([]models.Freelancer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Freelancer
	for _, f := range s.freelancers {
		if f.Category == category && f.IsAvailable {
			out = append(out, f)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) FindVerifiedFreelancer(_ context.Context) (*models.Freelancer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.freelancers {
		if s.freelancers[i].IsVerified {
			f := s.freelancers[i]
			return &f, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) LoadCatalog(_ context.Context, _ int) (*models.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.catalogErr != nil {
		return nil, s.catalogErr
	}
	return &models.Catalog{Freelancers: append([]models.Freelancer(nil), s.freelancers...)}, nil
}

func (s *fakeStore) UpsertConversation(_ context.Context, conv models.Conversation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv.ID = primitive.NewObjectID()
	s.conversations = append(s.conversations, conv)
	return conv.ID.Hex(), nil
}

func (s *fakeStore) CreateNotification(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *fakeStore) CreateBridgeSession(_ context.Context, session models.BridgeSession) (*models.BridgeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.ID = primitive.NewObjectID()
	session.Active = true
	session.CreatedAt = time.Now()
	s.bridges = append(s.bridges, &session)
	cp := session
	return &cp, nil
}

func (s *fakeStore) FindActiveBridge(_ context.Context, phone string) (*models.BridgeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.bridges) - 1; i >= 0; i-- {
		b := s.bridges[i]
		if b.Active && (b.ClientPhone == phone || b.FreelancerPhone == phone) {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) EndBridgeSession(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bridges {
		if b.ID == id {
			now := time.Now()
			b.Active = false
			b.EndedAt = &now
		}
	}
	return nil
}

func (s *fakeStore) history(phone string) []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HistoryEntry(nil), s.record(phone).Messages...)
}

func (s *fakeStore) activeBridges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.bridges {
		if b.Active {
			n++
		}
	}
	return n
}

type fakeNLU struct {
	mu       sync.Mutex
	reply    string
	err      error
	summary  string
	category string
	calls    int
	plain    int
}

func (n *fakeNLU) GenerateResponse(_ context.Context, _ []models.HistoryEntry, _ string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.plain++
	return n.reply, n.err
}

func (n *fakeNLU) GenerateResponseWithAllData(_ context.Context, _ []models.HistoryEntry, _ *models.Catalog, _, _ string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.reply, n.err
}

func (n *fakeNLU) SummarizeRequest(_ context.Context, _ []models.HistoryEntry) string {
	return n.summary
}

func (n *fakeNLU) InferServiceCategory(_ context.Context, _ string) string {
	return n.category
}

func (n *fakeNLU) generateCalls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// fakeProvider issues sequential invoices and reports the configured status.
type fakeProvider struct {
	mu        sync.Mutex
	next      int
	createErr error
	status    string
	verifyErr error
	byPayment map[string]string
	requests  []payment.LinkRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{status: payment.StatusPaid, byPayment: map[string]string{}}
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreatePaymentLink(_ context.Context, req payment.LinkRequest) (*payment.Link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.requests = append(p.requests, req)
	p.next++
	id := "INV-" + string(rune('0'+p.next))
	return &payment.Link{
		InvoiceID: id,
		URL:       "https://pay.example/" + id,
		Provider:  "fake",
		Amount:    req.Amount,
		Currency:  req.Currency,
		CreatedAt: time.Now(),
	}, nil
}

func (p *fakeProvider) VerifyPayment(_ context.Context, invoiceID string) (*payment.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	return &payment.Status{InvoiceID: invoiceID, InvoiceStatus: p.status, Provider: "fake"}, nil
}

func (p *fakeProvider) VerifyByPaymentID(ctx context.Context, paymentID string) (*payment.Status, error) {
	p.mu.Lock()
	invoiceID, ok := p.byPayment[paymentID]
	p.mu.Unlock()
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return p.VerifyPayment(ctx, invoiceID)
}

var errBoom = errors.New("boom")

func testFreelancers() []models.Freelancer {
	return []models.Freelancer{
		{ID: primitive.NewObjectID(), Name: "Ahmed Designer", Phone: "+" + freelancerPhone, Category: "design", IsVerified: true, IsAvailable: true},
		{ID: primitive.NewObjectID(), Name: "Layla Dev", Phone: "0551112244", Category: "programming", IsVerified: false, IsAvailable: true},
	}
}

type harness struct {
	store     *fakeStore
	messenger *fakeMessenger
	nlu       *fakeNLU
	provider  *fakeProvider
	bridge    *BridgeService
	flow      *PaymentFlow
	confirmer *PaymentConfirmer
	processor *Processor
}

func newHarness() *harness {
	h := &harness{
		store:     newFakeStore(testFreelancers()...),
		messenger: newFakeMessenger(),
		nlu:       &fakeNLU{},
		provider:  newFakeProvider(),
	}
	h.bridge = NewBridgeService(h.store, h.messenger, "SA")
	h.flow = NewPaymentFlow(h.store, h.nlu, h.provider, h.messenger, nil, PaymentOptions{Amount: 10, Currency: "KWD", Expiry: 12 * time.Hour})
	h.confirmer = NewPaymentConfirmer(h.provider, h.store, h.bridge, h.messenger, nil, "SA")
	h.processor = NewProcessor(nil, h.store, h.messenger, h.nlu, h.bridge, h.flow, nil, ProcessorOptions{})
	return h
}

func textMessage(id, from, text string) models.InboundMessage {
	return models.InboundMessage{ID: id, From: from, Name: "Sara", Type: models.MessageTypeText, Text: text}
}

func buttonMessage(id, from, buttonID string) models.InboundMessage {
	return models.InboundMessage{ID: id, From: from, Name: "Sara", Type: models.MessageTypeInteractive, ButtonID: buttonID, ButtonTitle: buttonID}
}
