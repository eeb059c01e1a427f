package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/agency"
	"openrecords/pkg/comms"
	"openrecords/pkg/foia"
	"openrecords/pkg/jobs"
	"openrecords/pkg/mailer"
	"openrecords/pkg/task"
)

// memUoW satisfies UnitOfWork against in-memory stores. Hooks are recorded
// and run after fn returns, mirroring after-commit semantics.
type memUoW struct {
	stores Stores
	// hooks that ran on the last successful Transact
	ran int
}

type memHooks struct {
	fns []func(context.Context) error
}

func (h *memHooks) OnCommit(fn func(context.Context) error) {
	h.fns = append(h.fns, fn)
}

func (u *memUoW) Transact(ctx context.Context, fn func(s Stores, h Hooks) error) error {
	h := &memHooks{}
	if err := fn(u.stores, h); err != nil {
		return err
	}
	for _, fn := range h.fns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	u.ran += len(h.fns)
	return nil
}

// --- task store ---

type memTasks struct {
	seq   int
	tasks map[string]*task.Task
}

func newMemTasks() *memTasks {
	return &memTasks{tasks: make(map[string]*task.Task)}
}

func (m *memTasks) Create(_ context.Context, t *task.Task) (*task.Task, error) {
	m.seq++
	t.ID = fmt.Sprintf("task-%d", m.seq)
	t.CreatedAt = time.Now()
	m.tasks[t.ID] = t
	return t, nil
}

func (m *memTasks) Get(_ context.Context, id string) (*task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	copied := *t
	return &copied, nil
}

func (m *memTasks) Resolve(_ context.Context, id, actor string, formData map[string]any) (*task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if t.Resolved {
		return nil, task.ErrAlreadyResolved
	}
	now := time.Now()
	t.Resolved = true
	t.ResolvedBy = actor
	t.ResolvedAt = &now
	t.FormData = formData
	copied := *t
	return &copied, nil
}

func (m *memTasks) Defer(_ context.Context, id string, until time.Time) (*task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	if t.Resolved {
		return nil, task.ErrAlreadyResolved
	}
	t.DeferredUntil = &until
	copied := *t
	return &copied, nil
}

func (m *memTasks) Assign(_ context.Context, id, userID string) (*task.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	t.Assigned = userID
	copied := *t
	return &copied, nil
}

func (m *memTasks) List(_ context.Context, f task.Filter) ([]task.Task, error) {
	var out []task.Task
	for _, t := range m.tasks {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Resolved != nil && t.Resolved != *f.Resolved {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTasks) OpenOrphansByDomain(_ context.Context, domain string) ([]task.Task, error) {
	var out []task.Task
	for _, t := range m.tasks {
		if t.Type == task.TypeOrphan && !t.Resolved &&
			strings.HasSuffix(strings.ToLower(t.Address), "@"+strings.ToLower(domain)) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTasks) OpenCountsByType(_ context.Context) (map[task.Type]int, error) {
	counts := make(map[task.Type]int)
	for _, t := range m.tasks {
		if !t.Resolved {
			counts[t.Type]++
		}
	}
	return counts, nil
}

func (m *memTasks) EnsureTable(context.Context) error { return nil }

func (m *memTasks) byType(tt task.Type) []*task.Task {
	var out []*task.Task
	for _, t := range m.tasks {
		if t.Type == tt {
			out = append(out, t)
		}
	}
	return out
}

// --- comms store ---

type memComms struct {
	seq         int
	comms       map[string]*comms.Communication
	emails      map[string]*comms.EmailAddress
	phones      map[string]*comms.PhoneNumber
	emailStats  map[string]comms.AddressStats
	phoneStats  map[string]comms.AddressStats
	blacklisted map[string]bool
}

func newMemComms() *memComms {
	return &memComms{
		comms:       make(map[string]*comms.Communication),
		emails:      make(map[string]*comms.EmailAddress),
		phones:      make(map[string]*comms.PhoneNumber),
		emailStats:  make(map[string]comms.AddressStats),
		phoneStats:  make(map[string]comms.AddressStats),
		blacklisted: make(map[string]bool),
	}
}

func (m *memComms) CreateCommunication(_ context.Context, c *comms.Communication) (*comms.Communication, error) {
	m.seq++
	c.ID = fmt.Sprintf("comm-%d", m.seq)
	c.Datetime = time.Now()
	m.comms[c.ID] = c
	copied := *c
	return &copied, nil
}

func (m *memComms) GetCommunication(_ context.Context, id string) (*comms.Communication, error) {
	c, ok := m.comms[id]
	if !ok {
		return nil, fmt.Errorf("communication %s not found", id)
	}
	copied := *c
	return &copied, nil
}

func (m *memComms) ByFOIA(_ context.Context, foiaID string) ([]comms.Communication, error) {
	var out []comms.Communication
	for _, c := range m.comms {
		if c.FOIAID == foiaID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memComms) Move(_ context.Context, commID string, foiaIDs []string) ([]comms.Communication, error) {
	orig, ok := m.comms[commID]
	if !ok {
		return nil, fmt.Errorf("communication %s not found", commID)
	}
	var out []comms.Communication
	orig.FOIAID = foiaIDs[0]
	out = append(out, *orig)
	for _, id := range foiaIDs[1:] {
		clone := *orig
		m.seq++
		clone.ID = fmt.Sprintf("comm-%d", m.seq)
		clone.FOIAID = id
		m.comms[clone.ID] = &clone
		out = append(out, clone)
	}
	return out, nil
}

func (m *memComms) SetStatus(_ context.Context, id, status string) error {
	c, ok := m.comms[id]
	if !ok {
		return fmt.Errorf("communication %s not found", id)
	}
	c.Status = status
	return nil
}

func (m *memComms) SetBody(_ context.Context, id, body string) error {
	c, ok := m.comms[id]
	if !ok {
		return fmt.Errorf("communication %s not found", id)
	}
	c.Body = body
	return nil
}

func (m *memComms) CountBetween(context.Context, time.Time, time.Time, bool) (int, error) {
	return 0, nil
}

func (m *memComms) CountDelivered(context.Context, time.Time, time.Time, string) (int, error) {
	return 0, nil
}

func (m *memComms) EnsureEmail(_ context.Context, email string) (*comms.EmailAddress, error) {
	for _, e := range m.emails {
		if e.Email == email {
			return e, nil
		}
	}
	m.seq++
	e := &comms.EmailAddress{ID: fmt.Sprintf("email-%d", m.seq), Email: email, Status: comms.AddrUnconfirmed}
	m.emails[e.ID] = e
	return e, nil
}

func (m *memComms) GetEmail(_ context.Context, id string) (*comms.EmailAddress, error) {
	e, ok := m.emails[id]
	if !ok {
		return nil, fmt.Errorf("email %s not found", id)
	}
	return e, nil
}

func (m *memComms) EnsurePhone(_ context.Context, number, phoneType string) (*comms.PhoneNumber, error) {
	for _, p := range m.phones {
		if p.Number == number {
			return p, nil
		}
	}
	m.seq++
	p := &comms.PhoneNumber{ID: fmt.Sprintf("phone-%d", m.seq), Number: number, Type: phoneType, Status: comms.AddrUnconfirmed}
	m.phones[p.ID] = p
	return p, nil
}

func (m *memComms) GetPhone(_ context.Context, id string) (*comms.PhoneNumber, error) {
	p, ok := m.phones[id]
	if !ok {
		return nil, fmt.Errorf("phone %s not found", id)
	}
	return p, nil
}

func (m *memComms) RecordEvent(_ context.Context, e *comms.DeliveryEvent) (*comms.DeliveryEvent, error) {
	m.seq++
	e.ID = fmt.Sprintf("event-%d", m.seq)
	e.Datetime = time.Now()
	status := comms.AddrGood
	if e.Kind == comms.EventError {
		status = comms.AddrError
	}
	switch {
	case e.EmailID != "":
		if addr, ok := m.emails[e.EmailID]; ok {
			addr.Status = status
		}
		stats := m.emailStats[e.EmailID]
		m.rollStats(&stats, e)
		m.emailStats[e.EmailID] = stats
	case e.PhoneID != "":
		if p, ok := m.phones[e.PhoneID]; ok {
			p.Status = status
		}
		stats := m.phoneStats[e.PhoneID]
		m.rollStats(&stats, e)
		m.phoneStats[e.PhoneID] = stats
	}
	return e, nil
}

func (m *memComms) rollStats(s *comms.AddressStats, e *comms.DeliveryEvent) {
	switch e.Kind {
	case comms.EventError:
		s.Status = comms.AddrError
		s.TotalErrors++
		s.LastError = &e.Datetime
		s.RecentErrors = append(s.RecentErrors, *e)
	case comms.EventConfirm:
		s.Status = comms.AddrGood
		s.LastConfirm = &e.Datetime
	case comms.EventOpen:
		s.Status = comms.AddrGood
		s.LastOpen = &e.Datetime
	}
}

func (m *memComms) EmailStats(_ context.Context, ids []string) (map[string]comms.AddressStats, error) {
	out := make(map[string]comms.AddressStats)
	for _, id := range ids {
		out[id] = m.emailStats[id]
	}
	return out, nil
}

func (m *memComms) PhoneStats(_ context.Context, ids []string) (map[string]comms.AddressStats, error) {
	out := make(map[string]comms.AddressStats)
	for _, id := range ids {
		out[id] = m.phoneStats[id]
	}
	return out, nil
}

func (m *memComms) Blacklist(_ context.Context, domain string) (*comms.BlacklistDomain, error) {
	m.blacklisted[domain] = true
	return &comms.BlacklistDomain{ID: domain, Domain: domain}, nil
}

func (m *memComms) IsBlacklisted(_ context.Context, domain string) (bool, error) {
	return m.blacklisted[domain], nil
}

func (m *memComms) EnsureTables(context.Context) error { return nil }

// --- foia store ---

type memFOIAs struct {
	seq       int
	requests  map[string]*foia.Request
	reviews   map[string][]foia.ReviewRequest // by agency
	composers map[string]*foia.Composer
	agencies  map[string][]string // composer -> agency ids
	notes     []foia.Note
	returned  map[string]int // composer -> quota returned

	// failCreateRequest makes the next CreateRequest fail, for testing
	// mid-transaction aborts.
	failCreateRequest error
}

func newMemFOIAs() *memFOIAs {
	return &memFOIAs{
		requests:  make(map[string]*foia.Request),
		reviews:   make(map[string][]foia.ReviewRequest),
		composers: make(map[string]*foia.Composer),
		agencies:  make(map[string][]string),
		returned:  make(map[string]int),
	}
}

func (m *memFOIAs) CreateRequest(_ context.Context, r *foia.Request) (*foia.Request, error) {
	if m.failCreateRequest != nil {
		return nil, m.failCreateRequest
	}
	m.seq++
	r.ID = fmt.Sprintf("foia-%d", m.seq)
	m.requests[r.ID] = r
	return r, nil
}

func (m *memFOIAs) GetRequest(_ context.Context, id string) (*foia.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("request %s not found", id)
	}
	copied := *r
	return &copied, nil
}

func (m *memFOIAs) List(context.Context, string, int) ([]foia.Request, error) {
	return nil, nil
}

func (m *memFOIAs) SetRequestStatus(_ context.Context, id, status string) error {
	r, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	r.Status = status
	return nil
}

func (m *memFOIAs) SetFollowup(_ context.Context, id string, at *time.Time) error {
	r, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	r.Followup = at
	return nil
}

func (m *memFOIAs) SetAgency(_ context.Context, id, agencyID string) error {
	r, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	r.AgencyID = agencyID
	return nil
}

func (m *memFOIAs) SetContact(_ context.Context, id string, u foia.ContactUpdate) error {
	r, ok := m.requests[id]
	if !ok {
		return fmt.Errorf("request %s not found", id)
	}
	if u.Email != nil {
		r.EmailID = *u.Email
	}
	if u.Fax != nil {
		r.FaxID = *u.Fax
	}
	if u.Address != nil {
		r.AddressID = *u.Address
	}
	return nil
}

func (m *memFOIAs) ByAgency(_ context.Context, agencyID string) ([]foia.Request, error) {
	var out []foia.Request
	for _, r := range m.requests {
		if r.AgencyID == agencyID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memFOIAs) OpenByAgency(_ context.Context, agencyID string) ([]foia.ReviewRequest, error) {
	return m.reviews[agencyID], nil
}

func (m *memFOIAs) DeleteRequest(_ context.Context, id string) error {
	delete(m.requests, id)
	return nil
}

func (m *memFOIAs) DeleteByAgency(_ context.Context, agencyID string) (int, error) {
	n := 0
	for id, r := range m.requests {
		if r.AgencyID == agencyID {
			delete(m.requests, id)
			n++
		}
	}
	return n, nil
}

func (m *memFOIAs) AddNote(_ context.Context, n *foia.Note) (*foia.Note, error) {
	n.ID = fmt.Sprintf("note-%d", len(m.notes)+1)
	n.Datetime = time.Now()
	m.notes = append(m.notes, *n)
	return n, nil
}

func (m *memFOIAs) CreateComposer(_ context.Context, c *foia.Composer, agencyIDs []string) (*foia.Composer, error) {
	m.seq++
	c.ID = fmt.Sprintf("composer-%d", m.seq)
	m.composers[c.ID] = c
	m.agencies[c.ID] = agencyIDs
	return c, nil
}

func (m *memFOIAs) GetComposer(_ context.Context, id string) (*foia.Composer, error) {
	c, ok := m.composers[id]
	if !ok {
		return nil, fmt.Errorf("composer %s not found", id)
	}
	copied := *c
	return &copied, nil
}

func (m *memFOIAs) SetComposerStatus(_ context.Context, id, status string) error {
	c, ok := m.composers[id]
	if !ok {
		return fmt.Errorf("composer %s not found", id)
	}
	c.Status = status
	return nil
}

func (m *memFOIAs) ComposerAgencies(_ context.Context, composerID string) ([]string, error) {
	return m.agencies[composerID], nil
}

func (m *memFOIAs) RemoveComposerAgency(_ context.Context, composerID, agencyID string) error {
	ids := m.agencies[composerID]
	for i, id := range ids {
		if id == agencyID {
			m.agencies[composerID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memFOIAs) RequestsByComposer(_ context.Context, composerID string) ([]foia.Request, error) {
	var out []foia.Request
	for _, r := range m.requests {
		if r.ComposerID == composerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memFOIAs) ReturnRequests(_ context.Context, composerID string, n int) error {
	c, ok := m.composers[composerID]
	if !ok {
		return fmt.Errorf("composer %s not found", composerID)
	}
	c.NumRequests -= n
	m.returned[composerID] += n
	return nil
}

func (m *memFOIAs) EnsureTables(context.Context) error { return nil }

// --- agency store ---

type memAgencies struct {
	seq           int
	agencies      map[string]*agency.Agency
	jurisdictions map[string]*agency.Jurisdiction
	primaryEmail  map[string]string
	primaryFax    map[string]string
	mailingAddr   map[string]string
	cleared       int
}

func newMemAgencies() *memAgencies {
	return &memAgencies{
		agencies:      make(map[string]*agency.Agency),
		jurisdictions: make(map[string]*agency.Jurisdiction),
		primaryEmail:  make(map[string]string),
		primaryFax:    make(map[string]string),
		mailingAddr:   make(map[string]string),
	}
}

func (m *memAgencies) Create(_ context.Context, a *agency.Agency) (*agency.Agency, error) {
	m.seq++
	a.ID = fmt.Sprintf("agency-%d", m.seq)
	m.agencies[a.ID] = a
	return a, nil
}

func (m *memAgencies) Get(_ context.Context, id string) (*agency.Agency, error) {
	a, ok := m.agencies[id]
	if !ok {
		return nil, fmt.Errorf("agency %s not found", id)
	}
	copied := *a
	return &copied, nil
}

func (m *memAgencies) List(context.Context, string) ([]agency.Agency, error) { return nil, nil }

func (m *memAgencies) SetStatus(_ context.Context, id, status string) error {
	a, ok := m.agencies[id]
	if !ok {
		return fmt.Errorf("agency %s not found", id)
	}
	a.Status = status
	return nil
}

func (m *memAgencies) SetStale(_ context.Context, id string, stale bool) error {
	a, ok := m.agencies[id]
	if !ok {
		return fmt.Errorf("agency %s not found", id)
	}
	a.Stale = stale
	return nil
}

func (m *memAgencies) ClearPrimaryEmails(_ context.Context, agencyID string) error {
	delete(m.primaryEmail, agencyID)
	m.cleared++
	return nil
}

func (m *memAgencies) ClearPrimaryFaxes(_ context.Context, agencyID string) error {
	delete(m.primaryFax, agencyID)
	return nil
}

func (m *memAgencies) SetPrimaryEmail(_ context.Context, agencyID, emailID string) error {
	m.primaryEmail[agencyID] = emailID
	return nil
}

func (m *memAgencies) SetPrimaryFax(_ context.Context, agencyID, phoneID string) error {
	m.primaryFax[agencyID] = phoneID
	return nil
}

func (m *memAgencies) PrimaryEmail(_ context.Context, agencyID string) (string, error) {
	return m.primaryEmail[agencyID], nil
}

func (m *memAgencies) MailingAddress(_ context.Context, agencyID string) (string, error) {
	return m.mailingAddr[agencyID], nil
}

func (m *memAgencies) CreateJurisdiction(_ context.Context, j *agency.Jurisdiction) (*agency.Jurisdiction, error) {
	m.seq++
	j.ID = fmt.Sprintf("jur-%d", m.seq)
	m.jurisdictions[j.ID] = j
	return j, nil
}

func (m *memAgencies) GetJurisdiction(_ context.Context, id string) (*agency.Jurisdiction, error) {
	j, ok := m.jurisdictions[id]
	if !ok {
		return nil, fmt.Errorf("jurisdiction %s not found", id)
	}
	return j, nil
}

func (m *memAgencies) EnsureTables(context.Context) error { return nil }

// --- account store ---

type memUsers struct {
	seq   int
	users map[string]*account.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[string]*account.User)}
}

func (m *memUsers) Create(_ context.Context, u *account.User) (*account.User, error) {
	m.seq++
	u.ID = fmt.Sprintf("user-%d", m.seq)
	m.users[u.ID] = u
	return u, nil
}

func (m *memUsers) Get(_ context.Context, id string) (*account.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	copied := *u
	return &copied, nil
}

func (m *memUsers) ByUsername(_ context.Context, username string) (*account.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %q not found", username)
}

func (m *memUsers) ByEmail(_ context.Context, email string) (*account.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, fmt.Errorf("user %q not found", email)
}

func (m *memUsers) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, u := range m.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) AddQuota(_ context.Context, id string, n int) (*account.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s not found", id)
	}
	u.Quota += n
	copied := *u
	return &copied, nil
}

func (m *memUsers) SetActive(_ context.Context, id string, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	u.IsActive = active
	return nil
}

func (m *memUsers) Active(context.Context) ([]account.User, error) { return nil, nil }
func (m *memUsers) Staff(context.Context) ([]account.User, error)  { return nil, nil }
func (m *memUsers) EnsureTable(context.Context) error              { return nil }

// --- test fixture ---

type recordingSender struct {
	sent []string // subjects
}

func (r *recordingSender) Send(_ context.Context, e mailer.Email) error {
	r.sent = append(r.sent, e.Subject)
	return nil
}

type recordingScheduler struct {
	scheduled []string // job names
	args      []map[string]any
}

func (r *recordingScheduler) Schedule(_ context.Context, name string, args map[string]any, _ time.Time) (*jobs.Job, error) {
	r.scheduled = append(r.scheduled, name)
	r.args = append(r.args, args)
	return &jobs.Job{Name: name, Args: args}, nil
}

type recordingNotifications struct {
	appended []activity.Notification
}

func (r *recordingNotifications) Append(_ context.Context, n *activity.Notification) (*activity.Notification, error) {
	r.appended = append(r.appended, *n)
	return n, nil
}

func (r *recordingNotifications) UnreadSince(context.Context, string, time.Time) ([]activity.Notification, error) {
	return nil, nil
}
func (r *recordingNotifications) MarkRead(context.Context, []string) error { return nil }
func (r *recordingNotifications) Count(context.Context) (int, error)       { return 0, nil }
func (r *recordingNotifications) EnsureTable(context.Context) error        { return nil }

type fixture struct {
	tasks         *memTasks
	comms         *memComms
	foias         *memFOIAs
	agencies      *memAgencies
	users         *memUsers
	sender        *recordingSender
	jobs          *recordingScheduler
	notifications *recordingNotifications
	svc           *Service
}

func newFixture() *fixture {
	f := &fixture{
		tasks:         newMemTasks(),
		comms:         newMemComms(),
		foias:         newMemFOIAs(),
		agencies:      newMemAgencies(),
		users:         newMemUsers(),
		sender:        &recordingSender{},
		jobs:          &recordingScheduler{},
		notifications: &recordingNotifications{},
	}
	f.svc = &Service{
		UoW: &memUoW{stores: Stores{
			Tasks:    f.tasks,
			Comms:    f.comms,
			FOIAs:    f.foias,
			Agencies: f.agencies,
			Users:    f.users,
		}},
		Jobs:          f.jobs,
		Sender:        f.sender,
		From:          "info@openrecords.example",
		CheckEmail:    "accounting@openrecords.example",
		Notifications: f.notifications,
	}
	return f
}
