package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-tenant-session/credentials"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"github.com/jrsteele09/go-tenant-session/realtime"
	"github.com/jrsteele09/go-tenant-session/sessions"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("Error running session client")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("session client stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	ctx := context.Background()
	manager, err := sessions.NewFromConfig(ctx, c, sessions.WithKeepAlive(c.GetMinTokenValidity()/2))
	if err != nil {
		return fmt.Errorf("sessions.NewFromConfig: %w", err)
	}
	defer manager.Close()

	expired := make(chan struct{}, 1)
	manager.OnLogout(func(e sessions.LogoutEvent) {
		log.Info().Str("reason", string(e.Reason)).Str("logout_url", e.LogoutURL).Msg("logged out")
		if e.Reason == sessions.ReasonSessionExpired {
			select {
			case expired <- struct{}{}:
			default:
			}
		}
	})

	if err := login(ctx, c, manager); err != nil {
		return err
	}
	if channel := manager.Realtime(); channel != nil {
		subscribe(channel)
		if err := channel.Connect(ctx); err != nil {
			log.Err(err).Msg("realtime connect failed, reconnecting in background")
		}
	}

	select {
	case <-waitForStopSignal():
		return logout(manager)
	case <-expired:
		// Stores are already cleared.
		return nil
	}
}

func login(ctx context.Context, c config.Config, manager *sessions.Manager) error {
	accessToken := c.GetAccessToken()
	if accessToken == "" {
		return fmt.Errorf("EDC_ACCESS_TOKEN is required")
	}
	if err := manager.Login(ctx, credentials.Credential{AccessToken: accessToken, RefreshToken: c.GetRefreshToken()}); err != nil {
		return err
	}
	name, err := manager.DisplayName(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("access token is not a readable JWT")
		return nil
	}
	log.Info().Str("user", name).Strs("services", manager.Services()).Msg("logged in")
	return nil
}

func subscribe(channel *realtime.Channel) {
	for _, eventType := range []string{
		realtime.EventMessageReceived,
		realtime.EventTypingStart,
		realtime.EventTypingStop,
		realtime.EventPresenceUpdate,
		realtime.EventConversationUpdated,
	} {
		channel.On(eventType, func(payload json.RawMessage) {
			log.Info().Str("event", eventType).RawJSON("payload", payload).Msg("realtime event")
		})
	}
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func logout(manager *sessions.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := manager.Logout(ctx); err != nil {
		return fmt.Errorf("manager.Logout: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
