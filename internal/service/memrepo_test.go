package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/popeskul/insdr-dispatcher/internal/ledger"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/repository"
)

// memStore is an in-memory repository with the same transition and
// uniqueness rules as the postgres schema.
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	seq      int
	messages map[string]*models.ScheduledMessage
	seqOf    map[string]int
	txs      []models.Transaction
	logs     []models.MessageLog
	accounts map[string]*models.Account

	pingErr   error
	txReadErr error
	logErr    error
	claimErr  error
}

func newMemStore() *memStore {
	return &memStore{
		messages: map[string]*models.ScheduledMessage{},
		seqOf:    map[string]int{},
		accounts: map[string]*models.Account{},
	}
}

func (s *memStore) repo() repository.Repository {
	return &memRepo{s: s}
}

func (s *memStore) addAccount(id, phone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[id] = &models.Account{
		ID:    id,
		Name:  "account " + id,
		Phone: sql.NullString{String: phone, Valid: phone != ""},
	}
}

func (s *memStore) credit(accountID string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, models.Transaction{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Kind:      models.TransactionCharge,
		Amount:    amount,
		Status:    models.TransactionStatusCompleted,
		CreatedAt: time.Now(),
	})
}

type messageOpt func(*models.ScheduledMessage)

func withChannel(ch models.ChannelType) messageOpt {
	return func(m *models.ScheduledMessage) {
		m.Channel = sql.NullString{String: string(ch), Valid: true}
	}
}

func withMetadata(md models.Metadata) messageOpt {
	return func(m *models.ScheduledMessage) { m.Metadata = md }
}

func withContent(content string) messageOpt {
	return func(m *models.ScheduledMessage) { m.Content = content }
}

func withScheduledAt(at time.Time) messageOpt {
	return func(m *models.ScheduledMessage) { m.ScheduledAt = at }
}

func (s *memStore) addMessage(accountID string, opts ...messageOpt) *models.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg := &models.ScheduledMessage{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		RecipientPhone: "010-1234-5678",
		Content:        "hello",
		Metadata:       models.Metadata{},
		ScheduledAt:    time.Now().Add(-time.Minute).Add(time.Duration(s.seq) * time.Millisecond),
		Status:         models.MessageStatusPending,
		CreatedAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(msg)
	}
	s.messages[msg.ID] = msg
	s.seqOf[msg.ID] = s.seq

	cp := *msg
	return &cp
}

func (s *memStore) message(id string) models.ScheduledMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.messages[id]
}

func (s *memStore) balance(accountID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var txs []models.Transaction
	for _, tx := range s.txs {
		if tx.AccountID == accountID {
			txs = append(txs, tx)
		}
	}
	return ledger.AdvertisingBalance(txs)
}

func (s *memStore) usage(accountID string) []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Transaction
	for _, tx := range s.txs {
		if tx.AccountID == accountID && tx.Kind == models.TransactionUsage {
			out = append(out, tx)
		}
	}
	return out
}

func (s *memStore) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

type snapshot struct {
	messages map[string]models.ScheduledMessage
	txs      []models.Transaction
	logs     []models.MessageLog
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		messages: make(map[string]models.ScheduledMessage, len(s.messages)),
		txs:      append([]models.Transaction(nil), s.txs...),
		logs:     append([]models.MessageLog(nil), s.logs...),
	}
	for id, m := range s.messages {
		snap.messages[id] = *m
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, m := range snap.messages {
		cp := m
		s.messages[id] = &cp
	}
	s.txs = snap.txs
	s.logs = snap.logs
}

type memRepo struct {
	s    *memStore
	inTx bool
}

func (r *memRepo) Ping() error                                   { return r.s.pingErr }
func (r *memRepo) Message() repository.MessageRepository         { return memMessages{r.s} }
func (r *memRepo) Transaction() repository.TransactionRepository { return memTransactions{r.s} }
func (r *memRepo) MessageLog() repository.MessageLogRepository   { return memLogs{r.s} }
func (r *memRepo) Account() repository.AccountRepository         { return memAccounts{r.s} }

// WithTx serialises transactions the way the account row lock does and
// restores the snapshot on error.
func (r *memRepo) WithTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	r.s.txMu.Lock()
	defer r.s.txMu.Unlock()

	snap := r.s.snapshot()
	if err := fn(&memRepo{s: r.s, inTx: true}); err != nil {
		r.s.restore(snap)
		return err
	}
	return nil
}

type memMessages struct{ s *memStore }

func (m memMessages) GetDueMessages(_ context.Context, now time.Time, limit int) ([]*models.ScheduledMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	var out []*models.ScheduledMessage
	for _, msg := range m.s.messages {
		if msg.Status == models.MessageStatusPending && !msg.ScheduledAt.After(now) && !claimLive(msg, now) {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.Before(out[j].ScheduledAt)
		}
		return m.s.seqOf[out[i].ID] < m.s.seqOf[out[j].ID]
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m memMessages) GetByID(_ context.Context, id string) (*models.ScheduledMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func claimLive(msg *models.ScheduledMessage, now time.Time) bool {
	return msg.ClaimedUntil.Valid && msg.ClaimedUntil.Time.After(now)
}

func (m memMessages) Claim(_ context.Context, id, owner string, now, until time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.claimErr != nil {
		return m.s.claimErr
	}
	msg, ok := m.s.messages[id]
	if !ok || msg.Status != models.MessageStatusPending || claimLive(msg, now) {
		return fmt.Errorf("message %s: %w", id, repository.ErrAlreadyClaimed)
	}
	msg.ClaimedBy = sql.NullString{String: owner, Valid: true}
	msg.ClaimedUntil = sql.NullTime{Time: until, Valid: true}
	return nil
}

func (m memMessages) Release(_ context.Context, id, owner string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if msg, ok := m.s.messages[id]; ok && msg.ClaimedBy.String == owner {
		msg.ClaimedBy = sql.NullString{}
		msg.ClaimedUntil = sql.NullTime{}
	}
	return nil
}

func (m memMessages) transition(id string, apply func(*models.ScheduledMessage)) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.messages[id]
	if !ok || msg.Status != models.MessageStatusPending {
		return repository.ErrStatusConflict
	}
	apply(msg)
	return nil
}

func (m memMessages) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	return m.transition(id, func(msg *models.ScheduledMessage) {
		msg.Status = models.MessageStatusSent
		msg.SentAt = sql.NullTime{Time: sentAt, Valid: true}
		msg.Error = sql.NullString{}
	})
}

func (m memMessages) MarkFailed(_ context.Context, id, reason string) error {
	return m.transition(id, func(msg *models.ScheduledMessage) {
		msg.Status = models.MessageStatusFailed
		msg.Error = sql.NullString{String: reason, Valid: true}
	})
}

func (m memMessages) filtered(status *models.MessageStatus) []*models.ScheduledMessage {
	var out []*models.ScheduledMessage
	for _, msg := range m.s.messages {
		if status == nil || msg.Status == *status {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.s.seqOf[out[i].ID] < m.s.seqOf[out[j].ID] })
	return out
}

func (m memMessages) GetMessages(_ context.Context, status *models.MessageStatus, offset, limit int) ([]*models.ScheduledMessage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	all := m.filtered(status)
	if offset >= len(all) {
		return []*models.ScheduledMessage{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m memMessages) CountMessages(_ context.Context, status *models.MessageStatus) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return int64(len(m.filtered(status))), nil
}

func (m memMessages) CreateMessage(_ context.Context, msg *models.ScheduledMessage) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	m.s.seq++
	cp := *msg
	m.s.messages[msg.ID] = &cp
	m.s.seqOf[msg.ID] = m.s.seq
	return nil
}

type memTransactions struct{ s *memStore }

func (t memTransactions) GetCompletedByAccount(_ context.Context, accountID string) ([]models.Transaction, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.txReadErr != nil {
		return nil, t.s.txReadErr
	}
	var out []models.Transaction
	for _, tx := range t.s.txs {
		if tx.AccountID == accountID && tx.Status == models.TransactionStatusCompleted {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (t memTransactions) Create(_ context.Context, tx *models.Transaction) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if tx.Kind == models.TransactionUsage {
		if id, _ := tx.Metadata[ledger.MetaMessageID].(string); id != "" {
			for _, existing := range t.s.txs {
				if existing.Kind == models.TransactionUsage && existing.Metadata[ledger.MetaMessageID] == id {
					return fmt.Errorf("duplicate usage for message %s", id)
				}
			}
		}
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	t.s.txs = append(t.s.txs, *tx)
	return nil
}

func (t memTransactions) CountUsageForMessage(_ context.Context, messageID string) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	n := 0
	for _, tx := range t.s.txs {
		if tx.Kind == models.TransactionUsage && tx.Metadata[ledger.MetaMessageID] == messageID {
			n++
		}
	}
	return n, nil
}

type memLogs struct{ s *memStore }

func (l memLogs) Create(_ context.Context, log *models.MessageLog) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.s.logErr != nil {
		return l.s.logErr
	}
	for _, existing := range l.s.logs {
		if existing.MessageID == log.MessageID {
			return errors.New("duplicate message log")
		}
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	l.s.logs = append(l.s.logs, *log)
	return nil
}

func (l memLogs) GetByMessageID(_ context.Context, messageID string) (*models.MessageLog, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	for _, log := range l.s.logs {
		if log.MessageID == messageID {
			cp := log
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

type memAccounts struct{ s *memStore }

func (a memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	acc, ok := a.s.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (a memAccounts) LockForUpdate(_ context.Context, id string) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if _, ok := a.s.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (a memAccounts) Create(_ context.Context, account *models.Account) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	cp := *account
	a.s.accounts[account.ID] = &cp
	return nil
}
