package nats

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Connect opens a NATS connection configured for long running nodes.
// It keeps reconnecting indefinitely and logs connection state changes.
// Options passed in override the defaults.
func Connect(servers []string, opts ...nats.Option) (*nats.Conn, error) {
	options := []nats.Option{
		nats.Name("nipc"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logrus.WithError(err).Warn("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.WithField("url", nc.ConnectedUrl()).Info("nats: reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logrus.Debug("nats: connection closed")
		}),
	}
	options = append(options, opts...)

	return nats.Connect(strings.Join(servers, ","), options...)
}
