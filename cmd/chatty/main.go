package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	video "github.com/chatty-im/chatty/internal/adapter/driven/call/memory"
	"github.com/chatty-im/chatty/internal/adapter/driven/gateway/ws"
	store "github.com/chatty-im/chatty/internal/adapter/driven/persistence/memory"
	"github.com/chatty-im/chatty/internal/adapter/driven/persistence/sqlite"
	"github.com/chatty-im/chatty/internal/adapter/driven/surface/console"
	"github.com/chatty-im/chatty/internal/config"
	"github.com/chatty-im/chatty/internal/core/domain"
	"github.com/chatty-im/chatty/internal/core/service"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.Login == "" {
		fmt.Fprintln(os.Stderr, "config: login is required")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).Level(level).With().Timestamp().Logger()
	zlog.Logger = l

	durable, err := sqlite.Open(cfg.DataDir)
	if err != nil {
		l.Fatal().Err(err).Msg("opening client store")
	}
	defer durable.Close()
	session := store.NewStore()

	auth := service.NewAuth(durable, session)
	if auth.Token() == "" {
		// The dev broker takes the login itself as the bearer token.
		if err := auth.SaveToken(cfg.Login, cfg.RememberMe); err != nil {
			l.Fatal().Err(err).Msg("storing credentials")
		}
	}

	router := service.NewRouter()
	sess := ws.NewSession(cfg.Server.Endpoint, auth, router)

	presence := service.NewPresence(durable, session, sess)
	presence.Watch(router)
	defer presence.Close()

	idle := service.NewIdleMonitor(presence, cfg.Idle.Threshold)
	idle.Watch()
	defer idle.Close()

	watchdog := service.NewWatchdog(cfg.Call.RingTicks, cfg.Call.TickInterval)
	gateway := service.NewCallGateway(sess)
	engine := video.NewEngine()

	machine := service.NewCallMachine(cfg.Login, gateway, watchdog, console.NewSurface(), console.NewRinger(), engine)
	machine.Run(router)
	defer machine.Close()

	logEvents(router, machine)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := sess.Connect(ctx); err != nil {
		cancel()
		l.Fatal().Err(err).Msg("connecting")
	}
	cancel()
	defer sess.Disconnect()

	sess.SubscribeToTopic(cfg.Login)
	presence.SetState(presence.StoredState())
	sess.RequestOnlineUsers()

	commandLoop(presence, machine, gateway, idle)
}

// logEvents prints the typed streams as they arrive.
func logEvents(router *service.Router, machine *service.CallMachine) {
	messages, _ := router.Messages().Subscribe()
	toasts, _ := router.Toasts().Subscribe()
	states, _ := router.Presence().Subscribe()
	calls, _ := machine.Changed()
	go func() {
		for {
			select {
			case m, ok := <-messages:
				if !ok {
					return
				}
				zlog.Info().Str("from", m.User.Login).Str("room", m.Room).Msg(m.Message)
			case t, ok := <-toasts:
				if !ok {
					return
				}
				zlog.Info().Msg(t)
			case s, ok := <-states:
				if !ok {
					return
				}
				zlog.Info().Str("user", s.User).Str("state", string(s.State)).
					Str("class", domain.StateClass(domain.AxisBackground, s.State)).Msg("presence")
			case c, ok := <-calls:
				if !ok {
					return
				}
				zlog.Info().Str("room", c.RoomID).Str("peer", c.PeerName).
					Str("state", string(c.State)).Msg("call")
			}
		}
	}()
}

func commandLoop(presence *service.Presence, machine *service.CallMachine, gateway *service.CallGateway, idle *service.IdleMonitor) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("commands: call <room> <peer> | accept | reject | cancel | hangup | msg <room> <text> | state <STATE> | users | quit")
	for scanner.Scan() {
		idle.Touch()
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "call":
			if len(fields) < 3 {
				fmt.Println("usage: call <room> <peer>")
				continue
			}
			if err := machine.MakeCall(fields[1], fields[2]); err != nil {
				zlog.Warn().Err(err).Msg("cannot place call")
			}
		case "accept":
			machine.Accept()
		case "reject":
			machine.Reject()
		case "cancel":
			machine.Cancel()
		case "hangup":
			machine.Hangup()
		case "msg":
			if len(fields) < 3 {
				fmt.Println("usage: msg <room> <text>")
				continue
			}
			gateway.Message(fields[1], strings.Join(fields[2:], " "))
		case "state":
			if len(fields) < 2 {
				fmt.Println("usage: state <ONLINE|AWAY|BUSY|OFFLINE>")
				continue
			}
			presence.SetState(domain.UserState(fields[1]))
		case "users":
			for user, state := range presence.RemoteStates() {
				fmt.Printf("%s\t%s\n", user, state)
			}
		case "quit":
			return
		default:
			fmt.Println("unknown command")
		}
	}
}
