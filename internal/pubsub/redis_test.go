package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chessrelay/internal/dependencies/mocks"
	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/testutil"
)

type RedisRouterSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	client *redis.Client
	router *RedisRouter
	ctx    context.Context
}

func TestRedisRouterSuite(t *testing.T) {
	suite.Run(t, new(RedisRouterSuite))
}

func (s *RedisRouterSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.ctx = context.Background()
	s.router = s.newRouter()
}

func (s *RedisRouterSuite) TearDownTest() {
	_ = s.router.Close()
	_ = s.client.Close()
}

func (s *RedisRouterSuite) newRouter() *RedisRouter {
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewRedisRouter(s.ctx, s.client, clk, testutil.NopLogger())
}

func (s *RedisRouterSuite) TestPublishReachesSubscriber() {
	rec := newRecorder()
	_, err := s.router.Subscribe("/topic/game/7/moves", rec.handle)
	s.Require().NoError(err)

	s.Require().NoError(s.router.Publish(s.ctx, "/topic/game/7/moves", moveEvent(7, 1)))

	msgs := rec.waitFor(s.T(), 1)
	s.Equal("/topic/game/7/moves", msgs[0].Topic)
	s.Equal(model.KindMove, msgs[0].Kind)
	s.Equal(model.GameID(7), decodeMove(s.T(), msgs[0]).GameID)
}

func (s *RedisRouterSuite) TestChannelIsNamespaced() {
	_, err := s.router.Subscribe("/topic/players", func(Message) {})
	s.Require().NoError(err)

	s.Contains(s.mini.PubSubChannels(""), "chessrelay:topic:/topic/players")
}

func (s *RedisRouterSuite) TestMessagesCrossInstances() {
	other := s.newRouter()
	defer func() { _ = other.Close() }()

	rec := newRecorder()
	_, err := other.Subscribe("/topic/user/alice/invitations", rec.handle)
	s.Require().NoError(err)

	s.Require().NoError(s.router.Publish(s.ctx, "/topic/user/alice/invitations", model.InvitationNotice{}))

	msgs := rec.waitFor(s.T(), 1)
	s.Equal(model.KindInvitation, msgs[0].Kind)
}

func (s *RedisRouterSuite) TestOrderingWithinTopic() {
	rec := newRecorder()
	_, err := s.router.Subscribe("/topic/game/1/moves", rec.handle)
	s.Require().NoError(err)

	for i := 1; i <= 20; i++ {
		s.Require().NoError(s.router.Publish(s.ctx, "/topic/game/1/moves", moveEvent(1, i)))
	}

	msgs := rec.waitFor(s.T(), 20)
	for i, msg := range msgs {
		s.Equal(i+1, decodeMove(s.T(), msg).MoveNumber)
	}
}

func (s *RedisRouterSuite) TestLastUnsubscribeReleasesChannel() {
	first, err := s.router.Subscribe("/topic/players", func(Message) {})
	s.Require().NoError(err)
	second, err := s.router.Subscribe("/topic/players", func(Message) {})
	s.Require().NoError(err)

	first.Unsubscribe()
	s.Contains(s.mini.PubSubChannels(""), "chessrelay:topic:/topic/players")

	second.Unsubscribe()
	second.Unsubscribe()
	s.Eventually(func() bool {
		return len(s.mini.PubSubChannels("")) == 0
	}, time.Second, 5*time.Millisecond)
}

func (s *RedisRouterSuite) TestCloseEndsSubscriptions() {
	other := s.newRouter()
	sub, err := other.Subscribe("/topic/players", func(Message) {})
	s.Require().NoError(err)
	s.False(closed(sub.Lost()))

	s.Require().NoError(other.Close())
	s.True(closed(sub.Lost()))
}

func (s *RedisRouterSuite) TestUnsubscribeIsNotLoss() {
	sub, err := s.router.Subscribe("/topic/players", func(Message) {})
	s.Require().NoError(err)

	sub.Unsubscribe()
	s.False(closed(sub.Lost()))
}
