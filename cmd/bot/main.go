// Command bot joins a relay game and plays the largest legal piece it can
// find on each of its turns, passing when nothing fits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/blokus-relay/internal/client"
	"github.com/DoyleJ11/blokus-relay/internal/engine"
	"github.com/DoyleJ11/blokus-relay/internal/logging"
	"github.com/DoyleJ11/blokus-relay/internal/replica"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
	"github.com/DoyleJ11/blokus-relay/internal/types"
)

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "relay websocket url")
	gameID := flag.String("game", "", "game id to join")
	create := flag.Bool("create", false, "create the game before joining")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *gameID == "" {
		fmt.Fprintln(os.Stderr, "-game is required")
		os.Exit(2)
	}
	logger, err := logging.New(*level, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := play(ctx, *url, *gameID, *create, logger); err != nil {
		logger.Error("bot stopped", zap.Error(err))
		os.Exit(1)
	}
}

func play(ctx context.Context, url, gameID string, create bool, logger *zap.Logger) error {
	c, err := client.Dial(ctx, url, engine.Rules{}, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(ctx) })

	if create {
		if err := c.CreateGame(ctx, gameID); err != nil {
			return err
		}
	}
	if err := c.JoinGame(ctx, gameID); err != nil {
		return err
	}

	g.Go(func() error {
		defer cancel()
		return drive(ctx, c, logger)
	})
	return g.Wait()
}

// drive reacts to updates until the game ends or the connection drops.
func drive(ctx context.Context, c *client.Client, logger *zap.Logger) error {
	actedAt := -1
	for u := range c.Updates() {
		switch u.Type {
		case types.EvtNonexistentGame:
			return fmt.Errorf("game %q does not exist", u.GameID)

		case types.EvtJoinedGame:
			if !u.Seat.Valid() {
				logger.Info("all seats taken, watching", zap.String("game_id", u.GameID))
			} else {
				logger.Info("seated", zap.String("game_id", u.GameID), zap.Int("seat", int(u.Seat)))
			}

		case types.EvtTakeTurn, types.EvtRejectedTurn:
			if u.Outcome.Superseded {
				logger.Info("our turn was superseded")
			}
			state := c.Replica().State()
			if engine.IsOver(state) {
				logScores(logger, state)
				return nil
			}
			n := len(c.Replica().Log())
			if state.Current != c.Replica().Seat() || n == actedAt {
				continue
			}
			actedAt = n
			if err := move(ctx, c, state, logger); err != nil {
				return err
			}
		}
	}
	return nil
}

func move(ctx context.Context, c *client.Client, state engine.State, logger *zap.Logger) error {
	legal := engine.LegalPlacements(state)
	var err error
	if len(legal) == 0 {
		logger.Info("no legal placement, passing")
		err = c.Pass(ctx)
	} else {
		t := legal[0]
		logger.Info("placing", zap.Stringer("turn", t))
		_, err = c.Submit(ctx, t)
	}
	// A probe failure means our view is stale; the next snapshot retries.
	if errors.Is(err, replica.ErrProbeFailed) {
		logger.Debug("stale move dropped", zap.Error(err))
		return nil
	}
	return err
}

func logScores(logger *zap.Logger, s engine.State) {
	fields := make([]zap.Field, 0, turn.MaxSeats)
	for seat := range turn.MaxSeats {
		fields = append(fields, zap.Int(fmt.Sprintf("seat_%d", seat), engine.Remaining(s, turn.Seat(seat))))
	}
	logger.Info("game over, cells remaining", fields...)
}
