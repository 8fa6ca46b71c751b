package kafkax

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// ReadyCheck dials the first configured broker. A TCP-level dial is
// enough to tell the cluster apart from a dead endpoint without
// touching any topic.
func ReadyCheck(brokers string) func(context.Context) error {
	return func(ctx context.Context) error {
		list := SplitBrokers(brokers)
		if len(list) == 0 {
			return errors.New("no kafka brokers configured")
		}
		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		conn, err := kafka.DialContext(dialCtx, "tcp", list[0])
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
