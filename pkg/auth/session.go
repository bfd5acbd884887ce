// Package auth exposes the authenticated session as an explicit signal.
//
// The OAuth exchange itself happens elsewhere; this package receives its
// result as an oauth2.TokenSource and hands out bearer tokens to the fetch
// paths. Consumers that react to sign-in and sign-out subscribe to a channel
// of State values rather than polling.
package auth

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/fieldpay/recordsync/pkg/syncerr"
)

// State is one observation of the session. Epoch increases on every sign-in,
// so two authenticated states with different epochs are different sessions
// even when a subscriber missed the sign-out in between.
type State struct {
	Authenticated bool
	Epoch         uint64
}

// TokenProvider is consumed by the remote client.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type Session struct {
	mu     sync.Mutex
	state  State
	source oauth2.TokenSource
	subs   map[int]chan State
	nextID int
}

var _ TokenProvider = (*Session)(nil)

func NewSession() *Session {
	return &Session{subs: make(map[int]chan State)}
}

// NewStaticSession is a session that is signed in with a fixed access token.
func NewStaticSession(accessToken string) *Session {
	s := NewSession()
	if accessToken != "" {
		s.SignIn(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))
	}
	return s
}

func (s *Session) SignIn(ts oauth2.TokenSource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.source = oauth2.ReuseTokenSource(nil, ts)
	s.state = State{Authenticated: true, Epoch: s.state.Epoch + 1}
	s.publish()
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Authenticated {
		return
	}
	s.source = nil
	s.state = State{Authenticated: false, Epoch: s.state.Epoch}
	s.publish()
}

func (s *Session) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel that immediately carries the current state and
// then every later change. Slow readers only see the latest state. The
// returned func unsubscribes and closes the channel.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	ch <- s.state
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// publish must be called with s.mu held.
func (s *Session) publish() {
	for _, ch := range s.subs {
		for {
			select {
			case ch <- s.state:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Token returns a valid bearer token or a KindUnauthenticated error.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	src := s.source
	s.mu.Unlock()

	if src == nil {
		return nil, syncerr.Newf(syncerr.KindUnauthenticated, "token", "not signed in")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tok, err := src.Token()
	if err != nil {
		return nil, syncerr.New(syncerr.KindUnauthenticated, "token", err)
	}
	if !tok.Valid() {
		return nil, syncerr.Newf(syncerr.KindUnauthenticated, "token", "token expired or empty")
	}
	return tok, nil
}
