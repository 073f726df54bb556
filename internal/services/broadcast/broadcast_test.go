package broadcast

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type fakeConn struct {
	id, user, role string

	mu     sync.Mutex
	events []models.Event
	err    error
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.user }
func (c *fakeConn) Role() string   { return c.role }
func (c *fakeConn) Send(ev models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) got() []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Event(nil), c.events...)
}

type BroadcastSuite struct {
	suite.Suite
	reg *Registry
	d   *Dispatcher
}

func (s *BroadcastSuite) SetupTest() {
	s.reg = NewRegistry()
	s.d = NewDispatcher(s.reg, zap.NewNop(), nil)
}

func (s *BroadcastSuite) TestRegisterJoinsDefaultChannels() {
	c := &fakeConn{id: "c1", user: "u1", role: "farmer"}
	s.reg.Register(c)

	chans := s.reg.Channels("c1")
	sort.Strings(chans)
	s.Require().Equal([]string{"global", "role:farmer", "user:u1"}, chans)
	s.Require().Equal(1, s.reg.Connections())
}

func (s *BroadcastSuite) TestPublishReachesOnlyMembers() {
	a := &fakeConn{id: "a", user: "u1", role: "farmer"}
	b := &fakeConn{id: "b", user: "u2", role: "farmer"}
	s.reg.Register(a)
	s.reg.Register(b)
	s.reg.Join(a, ShipmentChannel("SC-9"))

	n := s.d.Publish(ShipmentChannel("SC-9"), models.EventTrackingUpdate, map[string]int{"x": 1})
	s.Require().Equal(1, n)
	s.Require().Len(a.got(), 1)
	s.Require().Empty(b.got())
	s.Require().Equal(models.EventTrackingUpdate, a.got()[0].Name)
	s.Require().Equal("shipment:SC-9", a.got()[0].Channel)
}

func (s *BroadcastSuite) TestPublishManyDeduplicates() {
	a := &fakeConn{id: "a", user: "u1", role: "regulator"}
	b := &fakeConn{id: "b", user: "u2", role: "farmer"}
	s.reg.Register(a)
	s.reg.Register(b)
	s.reg.Join(a, ShipmentChannel("SC-9"))
	s.reg.Join(b, ShipmentChannel("SC-9"))

	n := s.d.PublishMany([]string{ShipmentChannel("SC-9"), UserChannel("u1"), RoleChannel("regulator")}, models.EventTrackingAlerts, nil)
	s.Require().Equal(2, n)
	s.Require().Len(a.got(), 1)
	s.Require().Len(b.got(), 1)
}

func (s *BroadcastSuite) TestPublishRoutesFirstMatchWins() {
	watcher := &fakeConn{id: "a", user: "u1", role: "regulator"}
	inspector := &fakeConn{id: "b", user: "u2", role: "regulator"}
	s.reg.Register(watcher)
	s.reg.Register(inspector)
	s.reg.Join(watcher, ShipmentChannel("SC-9"))

	n := s.d.PublishRoutes(models.EventTrackingAlerts,
		Route{Channel: ShipmentChannel("SC-9"), Payload: "full"},
		Route{Channel: RoleChannel("regulator"), Payload: "high"},
	)
	s.Require().Equal(2, n)
	s.Require().Len(watcher.got(), 1)
	s.Require().Equal("full", watcher.got()[0].Payload)
	s.Require().Len(inspector.got(), 1)
	s.Require().Equal("high", inspector.got()[0].Payload)
	s.Require().Equal("role:regulator", inspector.got()[0].Channel)
}

func (s *BroadcastSuite) TestLeaveAndDisconnect() {
	a := &fakeConn{id: "a", user: "u1", role: "farmer"}
	s.reg.Register(a)
	s.reg.Join(a, ShipmentChannel("S1"))
	s.reg.Join(a, ShipmentChannel("S2"))

	s.reg.Leave(a, ShipmentChannel("S1"))
	s.Require().Equal(0, s.d.Publish(ShipmentChannel("S1"), "e", nil))
	s.Require().Equal(1, s.d.Publish(ShipmentChannel("S2"), "e", nil))

	s.reg.Disconnect(a)
	s.Require().Empty(s.reg.Channels("a"))
	s.Require().Equal(0, s.reg.Connections())
	s.Require().Equal(0, s.d.Publish(GlobalChannel, "e", nil))
	s.Require().Empty(s.reg.Members(UserChannel("u1")))
}

func (s *BroadcastSuite) TestFailingConnDoesNotBlockOthers() {
	bad := &fakeConn{id: "bad", user: "u1", err: errors.New("queue full")}
	good := &fakeConn{id: "good", user: "u2"}
	s.reg.Register(bad)
	s.reg.Register(good)

	s.Require().Equal(1, s.d.Publish(GlobalChannel, models.EventSystemHealth, nil))
	s.Require().Len(good.got(), 1)
}

func (s *BroadcastSuite) TestSnapshotIsolation() {
	a := &fakeConn{id: "a", user: "u1"}
	s.reg.Register(a)
	before := s.reg.snap.Load()

	s.reg.Join(a, ShipmentChannel("S1"))
	_, inOld := before.channels[ShipmentChannel("S1")]
	s.Require().False(inOld)
	s.Require().Len(before.joined["a"], 2)
	s.Require().Len(s.reg.Channels("a"), 3)
}

func TestBroadcastSuite(t *testing.T) {
	suite.Run(t, new(BroadcastSuite))
}

func TestRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	reg := NewRegistry()
	d := NewDispatcher(reg, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		c := &fakeConn{id: string(rune('a' + i)), user: "u"}
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Register(c)
			reg.Join(c, ShipmentChannel("S"))
			reg.Disconnect(c)
		}()
		go func() {
			defer wg.Done()
			d.Publish(ShipmentChannel("S"), "e", nil)
		}()
	}
	wg.Wait()
	require.Equal(t, 0, reg.Connections())
}

func TestValidChannel(t *testing.T) {
	require.True(t, ValidChannel("global"))
	require.True(t, ValidChannel("role:regulator"))
	require.True(t, ValidChannel(ShipmentChannel("SC-9")))
	require.False(t, ValidChannel("user:"))
	require.False(t, ValidChannel("random"))
}
