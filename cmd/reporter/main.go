// Command reporter runs a reporter session against the alert store: it arms
// the countdown, dispatches to the registered contacts and the authority
// line, and waits for a responder to claim the alert. Intended for manual
// end-to-end runs against a development database.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"lifeline/alert"
	"lifeline/contact"
	"lifeline/db"
	"lifeline/dispatch"
	"lifeline/emergency"
	"lifeline/geo"
)

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatal("bootstrap database pool", zap.Error(err))
	}
	defer pool.Close()

	store := alert.NewStore(pool)
	listener := alert.NewListener(pool, store, log)
	go func() {
		if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("alert listener stopped", zap.Error(err))
		}
	}()

	provider := geo.StaticProvider{Position: geo.Position{
		Point: geo.Point{
			Latitude:  envFloat("REPORTER_LAT", -26.2041),
			Longitude: envFloat("REPORTER_LON", 28.0473),
		},
		Accuracy: geo.AccuracyBalanced,
	}}
	var geocoder geo.Geocoder
	if url := os.Getenv("GEOCODER_URL"); url != "" {
		geocoder = geo.NewHTTPGeocoder(url, os.Getenv("GEOCODER_API_KEY"))
	}
	resolver := geo.NewResolver(provider, geocoder, log)

	opener := dispatch.NewLoggingOpener(log)
	dispatcher := dispatch.NewDispatcher(
		[]dispatch.Channel{dispatch.WhatsApp(opener), dispatch.SMS(opener)},
		[]dispatch.Channel{dispatch.Dialer(opener)},
		getEnv("AUTHORITY_NUMBER", "10111"),
		log,
	)

	profile := emergency.Profile{
		ID:    getEnv("REPORTER_ID", "reporter-dev"),
		Name:  getEnv("REPORTER_NAME", "Dev Reporter"),
		Phone: getEnv("REPORTER_PHONE", "+27115550000"),
	}

	controller := emergency.NewController(
		resolver,
		contact.NewRepository(pool),
		dispatcher,
		store,
		emergency.ListenerWatcher{Listener: listener},
		profile,
		log,
	)

	if err := controller.Trigger(ctx); err != nil {
		log.Fatal("trigger", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-controller.Events():
			switch {
			case ev.Err != nil:
				log.Error("session failed", zap.String("state", string(ev.State)), zap.Error(ev.Err))
				return
			case ev.State == emergency.StateCountdown:
				log.Info("countdown", zap.Int("remaining", ev.Countdown))
			case ev.State == emergency.StateSent && ev.Report != nil:
				log.Info("alert sent", zap.String("summary", ev.Report.Summary()))
			case ev.State == emergency.StateResponseReceived:
				if ev.Alert != nil && ev.Alert.RespondedBy != nil {
					log.Info("help is on the way", zap.String("responder", *ev.Alert.RespondedBy))
				} else {
					log.Info("help is on the way")
				}
				return
			}
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
