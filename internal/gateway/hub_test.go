package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swiftdrop/server/internal/events"
	"swiftdrop/server/internal/store"
	"swiftdrop/server/internal/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeConn struct {
	mu   sync.Mutex
	got  []types.Notification
	fail bool
}

func (c *fakeConn) Send(n types.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection gone")
	}
	c.got = append(c.got, n)
	return nil
}

func (c *fakeConn) received() []types.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Notification(nil), c.got...)
}

func (c *fakeConn) types() []string {
	var out []string
	for _, n := range c.received() {
		out = append(out, n.Type)
	}
	return out
}

type fixture struct {
	clock *fakeClock
	store *store.Store
	log   *events.Memory
	hub   *Hub
}

func newFixture(codes ...string) *fixture {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts := []store.Option{store.WithClock(clk.Now)}
	if len(codes) > 0 {
		i := 0
		opts = append(opts, store.WithCodeGenerator(func() string {
			c := codes[i%len(codes)]
			i++
			return c
		}))
	}
	st := store.New(opts...)
	mem := events.NewMemory(0, 0)
	return &fixture{clock: clk, store: st, log: mem, hub: NewHub(st, mem)}
}

func TestCreateSession(t *testing.T) {
	f := newFixture()
	a := &fakeConn{}

	rep, err := f.hub.CreateSession(a, nil)
	require.NoError(t, err)
	assert.True(t, rep.Success)
	assert.Len(t, rep.Session.Code, 6)
	assert.Equal(t, 10*time.Minute, rep.Session.ExpiresAt.Sub(rep.Session.CreatedAt))

	dev, err := f.store.FindByConnection(a)
	require.NoError(t, err)
	assert.Equal(t, rep.DeviceID, dev.ID)

	evts := f.log.List(rep.Session.ID)
	require.Len(t, evts, 1)
	assert.Equal(t, events.SessionCreated, evts[0].Type)

	_, err = f.hub.CreateSession(a, nil)
	assert.ErrorIs(t, err, store.ErrAlreadyInSession)
}

func TestJoinSessionBroadcastsToOthers(t *testing.T) {
	f := newFixture("XK92P7")
	a, b := &fakeConn{}, &fakeConn{}

	created, err := f.hub.CreateSession(a, nil)
	require.NoError(t, err)
	require.Equal(t, "XK92P7", created.Session.Code)

	joined, err := f.hub.JoinSession(b, "XK92P7", nil)
	require.NoError(t, err)
	assert.Equal(t, created.Session.ID, joined.Session.ID)
	assert.NotNil(t, joined.Files)
	assert.Empty(t, joined.Files)

	got := a.received()
	require.Len(t, got, 1)
	assert.Equal(t, types.DeviceJoined, got[0].Type)
	assert.Equal(t, types.Membership{DeviceID: joined.DeviceID, DeviceCount: 2}, got[0].Payload)
	assert.Empty(t, b.received(), "joiner must not receive its own device-joined")
}

func TestJoinUnknownCode(t *testing.T) {
	f := newFixture()
	_, err := f.hub.JoinSession(&fakeConn{}, "ZZZZZZ", nil)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.Equal(t, "SessionNotFound", ErrorCode(err))
}

func TestJoinExpiredCodeFails(t *testing.T) {
	f := newFixture("XK92P7")
	_, err := f.hub.CreateSession(&fakeConn{}, nil)
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	_, err = f.hub.JoinSession(&fakeConn{}, "XK92P7", nil)
	require.Error(t, err)
	assert.Contains(t, []string{"SessionNotFound", "SessionExpired"}, ErrorCode(err))
}

func TestLateJoinerReceivesFileHistory(t *testing.T) {
	f := newFixture("XK92P7")
	a := &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)

	_, err := f.hub.PublishFile(a, created.DeviceID, types.FileData{Name: "one.txt", Size: 1, Type: "text/plain"})
	require.NoError(t, err)
	_, err = f.hub.PublishFile(a, created.DeviceID, types.FileData{Name: "two.txt", Size: 2, Type: "text/plain"})
	require.NoError(t, err)

	joined, err := f.hub.JoinSession(&fakeConn{}, "XK92P7", nil)
	require.NoError(t, err)
	require.Len(t, joined.Files, 2)
	assert.Equal(t, "one.txt", joined.Files[0].Name)
	assert.Equal(t, "two.txt", joined.Files[1].Name)
}

func TestPublishFileRelaysToOthersOnly(t *testing.T) {
	f := newFixture("XK92P7")
	a, b := &fakeConn{}, &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)
	_, err := f.hub.JoinSession(b, "XK92P7", nil)
	require.NoError(t, err)

	meta, err := f.hub.PublishFile(a, created.DeviceID, types.FileData{Name: "photo.png", Size: 2048, Type: "image/png"})
	require.NoError(t, err)

	got := b.received()
	require.Len(t, got, 1)
	assert.Equal(t, types.FileReceived, got[0].Type)
	relayed := got[0].Payload.(types.FileMetadata)
	assert.NotEmpty(t, relayed.ID)
	assert.Equal(t, meta.ID, relayed.ID)
	assert.Equal(t, created.DeviceID, relayed.UploadedBy)
	assert.Equal(t, int64(2048), relayed.Size)

	assert.Equal(t, []string{types.DeviceJoined}, a.types(), "publisher must not get an echo")
	assert.Len(t, f.store.Files(created.Session.ID), 1)
}

func TestPublishFileRejectsStaleOrForeignDevice(t *testing.T) {
	f := newFixture("XK92P7")
	a, b := &fakeConn{}, &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)
	_, _ = f.hub.JoinSession(b, "XK92P7", nil)

	_, err := f.hub.PublishFile(a, "no-such-device", types.FileData{Name: "x", Size: 1})
	assert.ErrorIs(t, err, store.ErrDeviceNotFound)

	_, err = f.hub.PublishFile(b, created.DeviceID, types.FileData{Name: "x", Size: 1})
	assert.ErrorIs(t, err, store.ErrDeviceNotFound)
	assert.Empty(t, f.store.Files(created.Session.ID))
}

func TestPublishAfterExpiryIsDropped(t *testing.T) {
	f := newFixture("XK92P7")
	a, b := &fakeConn{}, &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)
	_, _ = f.hub.JoinSession(b, "XK92P7", nil)

	f.clock.Advance(10*time.Minute + time.Second)
	_, err := f.hub.PublishFile(a, created.DeviceID, types.FileData{Name: "late", Size: 1})
	assert.ErrorIs(t, err, store.ErrSessionExpired)
	assert.Empty(t, b.received())
}

func TestDisconnectBroadcastsDeviceLeft(t *testing.T) {
	f := newFixture("XK92P7")
	a, b := &fakeConn{}, &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)
	joined, _ := f.hub.JoinSession(b, "XK92P7", nil)

	f.hub.Disconnect(b)

	got := a.received()
	require.Len(t, got, 2)
	assert.Equal(t, types.DeviceLeft, got[1].Type)
	assert.Equal(t, types.Membership{DeviceID: joined.DeviceID, DeviceCount: 1}, got[1].Payload)

	// duplicate teardown is a no-op
	f.hub.Disconnect(b)
	assert.Len(t, a.received(), 2)
	n, ok := f.store.DeviceCount(created.Session.ID)
	require.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestLastDeviceDisconnectRemovesSessionSilently(t *testing.T) {
	f := newFixture("XK92P7")
	a := &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)

	f.hub.Disconnect(a)

	_, err := f.store.Get(created.Session.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	assert.Empty(t, a.received())
	assert.Equal(t, store.Stats{}, f.store.Stats())

	evts := f.log.List(created.Session.ID)
	require.NotEmpty(t, evts)
	assert.Equal(t, events.SessionClosed, evts[len(evts)-1].Type)
}

func TestLeaveBehavesLikeDisconnect(t *testing.T) {
	f := newFixture("XK92P7")
	a, b := &fakeConn{}, &fakeConn{}
	_, _ = f.hub.CreateSession(a, nil)
	_, _ = f.hub.JoinSession(b, "XK92P7", nil)

	f.hub.Leave(a)
	assert.Equal(t, []string{types.DeviceLeft}, b.types())
	_, err := f.store.FindByConnection(a)
	assert.ErrorIs(t, err, store.ErrDeviceNotFound)
}

func TestExpireSessionsNotifiesAndCleansUp(t *testing.T) {
	f := newFixture("XK92P7")
	a, b := &fakeConn{}, &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)
	joined, _ := f.hub.JoinSession(b, "XK92P7", nil)

	assert.Zero(t, f.hub.ExpireSessions())

	f.clock.Advance(10*time.Minute + time.Second)
	assert.Equal(t, 1, f.hub.ExpireSessions())

	assert.Equal(t, []string{types.DeviceJoined, types.SessionExpired}, a.types())
	assert.Equal(t, []string{types.SessionExpired}, b.types())

	_, err := f.store.Get(created.Session.ID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
	for _, id := range []string{created.DeviceID, joined.DeviceID} {
		_, err := f.store.Find(id)
		assert.ErrorIs(t, err, store.ErrDeviceNotFound)
	}
	assert.Zero(t, f.hub.ExpireSessions())
}

func TestExpireSwallowsDeliveryFailures(t *testing.T) {
	f := newFixture("XK92P7")
	a, gone := &fakeConn{}, &fakeConn{fail: true}
	_, _ = f.hub.CreateSession(a, nil)
	_, _ = f.hub.JoinSession(gone, "XK92P7", nil)

	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.hub.ExpireSessions())
	assert.Equal(t, store.Stats{}, f.store.Stats())
	assert.Contains(t, a.types(), types.SessionExpired)
}

func TestJoinRacingExpiryNeverLeavesOrphans(t *testing.T) {
	f := newFixture()
	owner := &fakeConn{}
	created, _ := f.hub.CreateSession(owner, nil)
	f.clock.Advance(10*time.Minute - time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.hub.JoinSession(&fakeConn{}, created.Session.Code, nil)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.clock.Advance(time.Millisecond)
		f.hub.ExpireSessions()
	}()
	wg.Wait()
	f.hub.ExpireSessions()

	assert.Equal(t, store.Stats{}, f.store.Stats())
}

func TestNotificationOrderPerSession(t *testing.T) {
	f := newFixture("XK92P7")
	a := &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)

	var joiners []*fakeConn
	for i := 0; i < 5; i++ {
		c := &fakeConn{}
		joiners = append(joiners, c)
		_, err := f.hub.JoinSession(c, "XK92P7", nil)
		require.NoError(t, err)
	}
	for _, c := range joiners {
		f.hub.Disconnect(c)
	}

	var counts []int
	for _, n := range a.received() {
		counts = append(counts, n.Payload.(types.Membership).DeviceCount)
	}
	assert.Equal(t, []int{2, 3, 4, 5, 6, 5, 4, 3, 2, 1}, counts)
	_, err := f.store.Get(created.Session.ID)
	assert.NoError(t, err)
}

func TestErrorCodes(t *testing.T) {
	cases := map[error]string{
		store.ErrSessionNotFound:    "SessionNotFound",
		store.ErrSessionExpired:     "SessionExpired",
		store.ErrDeviceNotFound:     "DeviceNotFound",
		store.ErrAlreadyInSession:   "AlreadyInSession",
		store.ErrCodeSpaceExhausted: "CodeUnavailable",
		store.ErrInvalidFile:        "InvalidRequest",
		ErrInvalidRequest:           "InvalidRequest",
		errors.New("boom"):          "InternalError",
	}
	for err, want := range cases {
		assert.Equal(t, want, ErrorCode(err), "error %v", err)
	}
}

func TestAckFailureRollsBack(t *testing.T) {
	f := newFixture("XK92P7", "QW12ER")
	a := &fakeConn{}
	refused := errors.New("connection closed")

	_, err := f.hub.CreateSession(a, func(CreateReply) error { return refused })
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, store.Stats{}, f.store.Stats())

	created, err := f.hub.CreateSession(a, nil)
	require.NoError(t, err)
	b := &fakeConn{}
	_, err = f.hub.JoinSession(b, created.Session.Code, func(JoinReply) error { return refused })
	assert.ErrorIs(t, err, refused)

	_, err = f.store.FindByConnection(b)
	assert.ErrorIs(t, err, store.ErrDeviceNotFound)
	assert.Empty(t, a.received(), "no device-joined for a rolled back join")
	n, _ := f.store.DeviceCount(created.Session.ID)
	assert.Equal(t, 1, n)
}

func TestJoinAckPrecedesSessionTraffic(t *testing.T) {
	f := newFixture("XK92P7")
	a := &fakeConn{}
	created, _ := f.hub.CreateSession(a, nil)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = f.hub.PublishFile(a, created.DeviceID, types.FileData{Name: "burst.bin", Size: 1})
			}
		}
	}()

	for i := 0; i < 20; i++ {
		b := &fakeConn{}
		_, err := f.hub.JoinSession(b, "XK92P7", func(JoinReply) error {
			return b.Send(types.Notification{Type: ReplyMessage})
		})
		require.NoError(t, err)
		got := b.types()
		require.NotEmpty(t, got)
		assert.Equal(t, ReplyMessage, got[0])
	}
	close(stop)
	wg.Wait()
}
