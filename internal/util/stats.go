package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// Stats is the process-wide session/traffic counter.
var Stats = &stats{}

type stats struct {
	Sessions   atomic.Int64 // matches entered since process start
	MsgsSent   atomic.Int64
	MsgsRecv   atomic.Int64
	Reconnects atomic.Int64
}

func (s *stats) AddSession()   { s.Sessions.Add(1) }
func (s *stats) AddSent()      { s.MsgsSent.Add(1) }
func (s *stats) AddRecv()      { s.MsgsRecv.Add(1) }
func (s *stats) AddReconnect() { s.Reconnects.Add(1) }

// StartStatsReporter launches a goroutine that logs counters every 60
// seconds, skipping idle windows. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevSessions int64
		for {
			select {
			case <-ticker.C:
				sessions := Stats.Sessions.Load()
				sent := Stats.MsgsSent.Load()
				recv := Stats.MsgsRecv.Load()

				if sent != prevSent || recv != prevRecv || sessions != prevSessions {
					pterm.DefaultLogger.Info(fmt.Sprintf(
						"sessions: %d | msgs: %d↑ %d↓ | reconnects: %d",
						sessions, sent, recv, Stats.Reconnects.Load(),
					))
				}

				prevSent = sent
				prevRecv = recv
				prevSessions = sessions

			case <-ctx.Done():
				return
			}
		}
	}()
}
