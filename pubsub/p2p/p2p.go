// Package p2p provides a brokerless pubsub transport built on libp2p
// gossipsub. Nodes discover each other via bootstrap peers or mDNS and
// gossip messages per subject, so RPC and broadcast work without a
// central server.
//
// Gossipsub has no queue groups. The queue parameter on subscriptions is
// ignored and every subscriber receives each message, so nodes on this
// transport need unique ids: two nodes sharing an id would both serve
// every request addressed to it.
package p2p

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	libp2p "github.com/libp2p/go-libp2p"
	libpubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/nivrem/nipc/pubsub"
	"github.com/sirupsen/logrus"
)

// Options configures the libp2p transport.
type Options struct {
	ListenAddrs     []string
	Bootstrap       []string
	Rendezvous      string
	EnableMDNS      bool
	IdentityKeyFile string
}

// Transport provides gossip-based pubsub over libp2p. It implements both the
// pubsub.Publisher and the pubsub.Subscriber interface.
type Transport struct {
	ctx    context.Context
	cancel context.CancelFunc

	host host.Host
	ps   *libpubsub.PubSub

	mu     sync.Mutex
	topics map[string]*libpubsub.Topic
}

var _ pubsub.Publisher = (*Transport)(nil)
var _ pubsub.Subscriber = (*Transport)(nil)

// New creates a libp2p host, starts gossipsub on it and connects to the
// configured bootstrap peers.
func New(parent context.Context, opts Options) (*Transport, error) {
	ctx, cancel := context.WithCancel(parent)

	listenAddrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
	for _, s := range opts.ListenAddrs {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		listenAddrs = append(listenAddrs, a)
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		listenAddrs = append(listenAddrs, a)
	}

	libp2pOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(opts.IdentityKeyFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load identity key: %w", err)
		}
		libp2pOpts = append(libp2pOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(libp2pOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := libpubsub.NewGossipSub(ctx, h)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	t := &Transport{
		ctx:    ctx,
		cancel: cancel,
		host:   h,
		ps:     ps,
		topics: make(map[string]*libpubsub.Topic),
	}

	if opts.EnableMDNS {
		service := mdns.NewMdnsService(h, opts.Rendezvous, &mdnsNotifee{host: h})
		if err := service.Start(); err != nil {
			logrus.WithError(err).Warn("p2p: mdns start failed")
		}
	}

	for _, raw := range opts.Bootstrap {
		if raw == "" {
			continue
		}
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			logrus.WithError(err).Warnf("p2p: skip bootstrap addr %q", raw)
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			logrus.WithError(err).Warnf("p2p: skip bootstrap addr %q", raw)
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			logrus.WithError(err).Warnf("p2p: bootstrap connect failed %s", info.ID)
		} else {
			logrus.Infof("p2p: connected bootstrap peer %s", info.ID)
		}
	}

	return t, nil
}

// Publish implements the pubsub.Publisher interface.
func (t *Transport) Publish(msg pubsub.Message) error {
	topic, err := t.getOrJoinTopic(msg.Subject)
	if err != nil {
		return err
	}
	return topic.Publish(t.ctx, msg.Data)
}

// Subscribe implements the pubsub.Subscriber interface. The handler is called
// sequentially per subscription, preserving message order.
func (t *Transport) Subscribe(subject, queue string, handler pubsub.Handler) (pubsub.Subscription, error) {
	return t.subscribe(subject, handler, false)
}

// SubscribeAsync implements the pubsub.Subscriber interface. The handler is
// called in a new goroutine per message.
func (t *Transport) SubscribeAsync(subject, queue string, handler pubsub.Handler) (pubsub.Subscription, error) {
	return t.subscribe(subject, handler, true)
}

func (t *Transport) subscribe(subject string, handler pubsub.Handler, async bool) (pubsub.Subscription, error) {
	topic, err := t.getOrJoinTopic(subject)
	if err != nil {
		return nil, err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, err
	}

	subCtx, subCancel := context.WithCancel(t.ctx)
	go func() {
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			m := pubsub.Message{Subject: subject, Data: append([]byte(nil), msg.Data...)}
			if async {
				go handler(subCtx, m)
				continue
			}
			handler(subCtx, m)
		}
	}()

	return &subscription{sub: sub, cancel: subCancel}, nil
}

// Flush implements the pubsub.Subscriber interface. Gossipsub has no flush
// semantics, so this is a no-op.
func (t *Transport) Flush() error {
	return nil
}

// Close shuts down the gossipsub topics and the libp2p host.
func (t *Transport) Close() error {
	t.cancel()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, topic := range t.topics {
		_ = topic.Close()
	}
	return t.host.Close()
}

// PeerID returns the libp2p peer id of this host.
func (t *Transport) PeerID() string {
	return t.host.ID().String()
}

// ListenAddrs returns the full multiaddrs other peers can dial.
func (t *Transport) ListenAddrs() []string {
	out := make([]string, 0, len(t.host.Addrs()))
	for _, addr := range t.host.Addrs() {
		out = append(out, fmt.Sprintf("%s/p2p/%s", addr.String(), t.host.ID().String()))
	}
	return out
}

// ConnectedPeers returns the ids of currently connected peers.
func (t *Transport) ConnectedPeers() []string {
	peers := t.host.Network().Peers()
	out := make([]string, 0, len(peers))
	for _, pid := range peers {
		out = append(out, pid.String())
	}
	return out
}

func (t *Transport) getOrJoinTopic(name string) (*libpubsub.Topic, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if topic, ok := t.topics[name]; ok {
		return topic, nil
	}
	topic, err := t.ps.Join(name)
	if err != nil {
		return nil, err
	}
	t.topics[name] = topic
	return topic, nil
}

type subscription struct {
	sub    *libpubsub.Subscription
	cancel context.CancelFunc
}

// Unsubscribe implements the pubsub.Subscription interface.
func (s *subscription) Unsubscribe() error {
	s.cancel()
	s.sub.Cancel()
	return nil
}

type mdnsNotifee struct {
	host host.Host
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if err := n.host.Connect(context.Background(), info); err != nil {
		logrus.WithError(err).Debugf("p2p: mdns connect failed %s", info.ID)
	}
}

func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		key, err := crypto.UnmarshalPrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("unmarshal private key: %w", err)
		}
		return key, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir key dir: %w", err)
	}
	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return key, nil
}
