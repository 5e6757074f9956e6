// callkit-demo runs a scripted passenger-to-driver call against an
// in-process relay, with fake capture devices and a fake media engine, and
// prints both parties' call history at the end. It exists to show the
// moving parts of a call without real devices or a network.
//
// Configuration is read from settings.toml in the working directory, with
// flags taking precedence:
//
//	-level     log level: trace|debug|info|warn|error (default: "info")
//	-type      call type: voice|video|emergency (default: "voice")
//	-talk      how long the call stays active (default: 2s)
//	-db        sqlite path for the passenger's history (default: in-memory)
//
// Example:
//
//	callkit-demo -type video -talk 5s -level debug
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/hitch-mobility/callkit/pkg/call"
	"github.com/hitch-mobility/callkit/pkg/history"
	"github.com/hitch-mobility/callkit/pkg/logutil"
	"github.com/hitch-mobility/callkit/pkg/media"
	"github.com/hitch-mobility/callkit/pkg/signaling"
)

type party struct {
	id       string
	manager  *call.Manager
	pipe     *signaling.Pipe
	engine   *media.FakeEngine
	provider *media.FakeProvider
}

func main() {
	level := flag.String("level", "", "log level (overrides config)")
	callTypeFlag := flag.String("type", "", "call type: voice|video|emergency (overrides config)")
	talk := flag.Duration("talk", 0, "how long the call stays active (overrides config)")
	dbPath := flag.String("db", "", "sqlite path for the passenger's history (overrides config)")
	flag.Parse()

	v := viper.New()
	v.SetConfigName("settings")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.SetDefault("log_level", "info")
	v.SetDefault("call_type", "voice")
	v.SetDefault("talk_time", "2s")
	v.SetDefault("history_db", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("read config: %v", err)
		}
	}
	if *level != "" {
		v.Set("log_level", *level)
	}
	if *callTypeFlag != "" {
		v.Set("call_type", *callTypeFlag)
	}
	if *talk != 0 {
		v.Set("talk_time", *talk)
	}
	if *dbPath != "" {
		v.Set("history_db", *dbPath)
	}

	callType, ok := call.ParseCallType(v.GetString("call_type"))
	if !ok {
		log.Fatalf("unknown call type %q", v.GetString("call_type"))
	}
	talkTime := v.GetDuration("talk_time")

	loggerFactory := logutil.NewConsoleFactory(os.Stderr, v.GetString("log_level"))

	var passengerStore history.Store = history.NewMemoryStore()
	if path := v.GetString("history_db"); path != "" {
		s, err := history.NewSQLiteStore(path)
		if err != nil {
			log.Fatalf("open history db: %v", err)
		}
		defer s.Close()
		passengerStore = s
	}

	relay := signaling.NewRelay(signaling.RelayConfig{LoggerFactory: loggerFactory})
	defer relay.Close()

	passenger := newParty(relay, loggerFactory, "passenger-1", "Pat", passengerStore)
	defer passenger.close()
	driver := newParty(relay, loggerFactory, "driver-7", "Drew", history.NewMemoryStore())
	defer driver.close()

	logEvents(passenger)
	logEvents(driver)

	ringing := make(chan call.Session, 1)
	driver.manager.Subscribe(call.EventTypeIncomingCall, func(e call.Event) {
		select {
		case ringing <- e.Session:
		default:
		}
	})
	ended := make(chan string, 2)
	for _, p := range []*party{passenger, driver} {
		id := p.id
		p.manager.Subscribe(call.EventTypeCallEnded, func(call.Event) {
			ended <- id
		})
	}

	ctx := context.Background()

	fmt.Printf("== %s call: passenger-1 -> driver-7 ==\n", callType)
	id, err := passenger.manager.Initiate(ctx, call.InitiateParams{
		CalleeID: "driver-7",
		Callee:   call.Participant{ID: "driver-7", Name: "Drew"},
		Type:     callType,
		Purpose:  "pickup_coordination",
		Linkage:  call.Linkage{RideID: "ride-42"},
	})
	if err != nil {
		log.Fatalf("initiate: %v", err)
	}
	fmt.Printf("dialing, provisional session %s\n", id)

	var incoming call.Session
	select {
	case incoming = <-ringing:
	case <-time.After(5 * time.Second):
		log.Fatal("driver never rang")
	}
	fmt.Printf("driver ringing: %s calling about %s (session %s)\n",
		incoming.Caller.Name, incoming.Purpose, incoming.ID)

	time.Sleep(300 * time.Millisecond) // let it ring a moment
	if err := driver.manager.Accept(ctx); err != nil {
		log.Fatalf("accept: %v", err)
	}

	// Wait for the offer and answer to cross the relay.
	if err := waitFor("handshake", 5*time.Second, func() bool {
		pp, dp := passenger.engine.LastPeer(), driver.engine.LastPeer()
		if pp == nil || dp == nil {
			return false
		}
		_, okP := pp.RemoteDescription()
		_, okD := dp.RemoteDescription()
		return okP && okD
	}); err != nil {
		log.Fatal(err)
	}

	passengerPeer := passenger.engine.LastPeer()
	driverPeer := driver.engine.LastPeer()

	// Trickle one candidate from each side, then bring the fake engines up.
	passengerPeer.FireCandidate(media.Candidate{Candidate: "candidate:1 1 udp 2122260223 192.0.2.10 50000 typ host"})
	driverPeer.FireCandidate(media.Candidate{Candidate: "candidate:1 1 udp 2122260223 192.0.2.20 50001 typ host"})
	passengerPeer.FireConnectionState(media.ConnectionStateConnected)
	driverPeer.FireConnectionState(media.ConnectionStateConnected)
	passengerPeer.FireRemoteTrack(media.RemoteTrack{ID: "driver-mic", Kind: media.TrackKindAudio})
	driverPeer.FireRemoteTrack(media.RemoteTrack{ID: "passenger-mic", Kind: media.TrackKindAudio})

	if err := waitFor("both parties active", 5*time.Second, func() bool {
		return active(passenger) && active(driver)
	}); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("call active, talking for %s\n", talkTime)

	time.Sleep(talkTime / 2)

	// Mid-call controls.
	driver.manager.ToggleAudio()
	time.Sleep(200 * time.Millisecond)
	driver.manager.ToggleAudio()
	if callType.HasVideo() {
		passenger.manager.SwitchCamera(ctx)
	}
	if err := passenger.manager.UpdateQuality(ctx, 5); err != nil {
		log.Fatalf("rate call: %v", err)
	}

	time.Sleep(talkTime / 2)

	fmt.Println("passenger hanging up")
	if err := passenger.manager.End(call.ReasonUnspecified); err != nil {
		log.Fatalf("end: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case who := <-ended:
			fmt.Printf("%s: call ended\n", who)
		case <-time.After(5 * time.Second):
			log.Fatal("a party never saw the call end")
		}
	}

	printHistory(ctx, passenger)
	printHistory(ctx, driver)
}

func newParty(relay *signaling.Relay, loggerFactory *logutil.ZerologFactory, id, name string, store history.Store) *party {
	p := &party{
		id:       id,
		pipe:     signaling.NewPipe(),
		engine:   media.NewFakeEngine(),
		provider: media.NewFakeProvider(),
	}

	m, err := call.NewManager(call.Config{
		Self:          call.Participant{ID: id, Name: name},
		Transport:     p.pipe.End0(),
		Provider:      p.provider,
		Engine:        p.engine,
		History:       store,
		LoggerFactory: loggerFactory,
	})
	if err != nil {
		log.Fatalf("manager %s: %v", id, err)
	}
	p.manager = m
	relay.Attach(id, p.pipe.End1())
	return p
}

func (p *party) close() {
	_ = p.manager.Close()
	_ = p.pipe.Close()
}

// logEvents prints every call event as it happens.
func logEvents(p *party) {
	types := []call.EventType{
		call.EventTypeIncomingCall, call.EventTypeCallInitiated,
		call.EventTypeCallAccepted, call.EventTypeCallRejected,
		call.EventTypeCallEnded, call.EventTypeCallError,
		call.EventTypeLocalStreamReceived, call.EventTypeRemoteStreamReceived,
		call.EventTypeConnectionStateChanged, call.EventTypeAudioToggled,
		call.EventTypeVideoToggled, call.EventTypeCameraSwitched,
	}
	for _, typ := range types {
		p.manager.Subscribe(typ, func(e call.Event) {
			switch e.Type {
			case call.EventTypeConnectionStateChanged:
				fmt.Printf("  [%s] %s: %s\n", p.id, e.Type, e.State)
			case call.EventTypeAudioToggled, call.EventTypeVideoToggled:
				fmt.Printf("  [%s] %s: enabled=%t\n", p.id, e.Type, e.Enabled)
			case call.EventTypeCallEnded, call.EventTypeCallRejected:
				fmt.Printf("  [%s] %s: reason=%s\n", p.id, e.Type, e.Reason)
			case call.EventTypeCallError:
				fmt.Printf("  [%s] %s: %v\n", p.id, e.Type, e.Err)
			case call.EventTypeRemoteStreamReceived:
				fmt.Printf("  [%s] %s: %s %s\n", p.id, e.Type, e.Track.Kind, e.Track.ID)
			default:
				fmt.Printf("  [%s] %s\n", p.id, e.Type)
			}
		})
	}
}

func active(p *party) bool {
	s, ok := p.manager.ActiveCall()
	return ok && s.Status == call.StatusActive
}

func waitFor(what string, timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for %s", what)
}

func printHistory(ctx context.Context, p *party) {
	recs, err := p.manager.History(ctx, 10, 0)
	if err != nil {
		log.Fatalf("history %s: %v", p.id, err)
	}

	fmt.Printf("\n== %s call history ==\n", p.id)
	for _, rec := range recs {
		quality := "unrated"
		if rec.Quality > 0 {
			quality = fmt.Sprintf("%d/5", rec.Quality)
		}
		fmt.Printf("%s  %s %s->%s  %s/%s  %s  %s\n",
			rec.StartedAt.Format(time.TimeOnly), rec.CallType,
			rec.CallerID, rec.CalleeID, rec.Outcome, rec.Reason,
			rec.Duration.Round(time.Millisecond), quality)
	}
}
