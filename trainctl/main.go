package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"bringyour.com/railway/connect"
	"bringyour.com/railway/protocol"
)

const TrainCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Railway controller control.

Signal ids are stretchId;id. Quote them in the shell, e.g. "2;5".

Usage:
    trainctl trains [options]
    trainctl stretches [options]
    trainctl signals [options]
    trainctl watch [options]
    trainctl add-train [options] --name=<name> --slow=<slow> --half=<half> --fast=<fast>
    trainctl update-train [options] <train_id> [--name=<name>] [--slow=<slow>] [--half=<half>] [--fast=<fast>]
    trainctl delete-train [options] <train_id>
    trainctl add-stretch [options] --name=<name> [--stretch_type=<stretch_type>]
    trainctl update-stretch [options] <stretch_id> [--name=<name>] [--stretch_type=<stretch_type>]
    trainctl delete-stretch [options] <stretch_id>
    trainctl add-signal [options] <stretch_id> --name=<name> [--speed_limit=<speed_limit>]
        [--splitter | --merger] [--detour=<detour_id>] [--loop_back=<loop_back_id>]
    trainctl update-signal [options] <signal_id> [--name=<name>] [--speed_limit=<speed_limit>]
    trainctl delete-signal [options] <signal_id>
    trainctl jump-start [options] <train_id> <signal_id>
    trainctl stop [options] <train_id>
    trainctl stop-at-signal [options] <train_id> <signal_id>
    trainctl cancel-stop [options] <train_id>
    trainctl switch-passthrough [options] <signal_id>
    trainctl switch-detour [options] <signal_id>
    trainctl force-red [options] <signal_id>
    trainctl unforce-red [options] <signal_id>
    trainctl move-signal-up [options] <signal_id>
    trainctl move-signal-down [options] <signal_id>
    trainctl event-log [options] [--since=<since>] [--event_type=<event_type>]

Options:
    -h --help                      Show this screen.
    --version                      Show version.
    --config=<config>              Client settings json.
    --url=<url>                    Controller websocket url. Overrides the config.
    --token=<token>                Bearer token. Use - to read it from the terminal.
    --timeout=<timeout>            Call timeout, e.g. 10s.
    --policy=<policy>              Concurrent calls of one verb: queue, reject, replace.
    --name=<name>
    --slow=<slow>                  Slow speed.
    --half=<half>                  Half speed.
    --fast=<fast>                  Fast speed.
    --stretch_type=<stretch_type>  1 one way single track (default).
    --speed_limit=<speed_limit>    slow, half or fast (default fast).
    --splitter                     A switch that diverges one track to two.
    --merger                       A switch that converges two tracks to one.
    --detour=<detour_id>           Detour signal id of a switch.
    --loop_back=<loop_back_id>     Signal id the track loops back to.
    --since=<since>                Only events in this duration, e.g. 1h.
    --event_type=<event_type>      Only events of this type, e.g. train-stop-at-danger-signal.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], TrainCtlVersion)
	if err != nil {
		panic(err)
	}

	if trains_, _ := opts.Bool("trains"); trains_ {
		run(opts, trains)
	} else if stretches_, _ := opts.Bool("stretches"); stretches_ {
		run(opts, stretches)
	} else if signals_, _ := opts.Bool("signals"); signals_ {
		run(opts, signals)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		run(opts, watch)
	} else if addTrain_, _ := opts.Bool("add-train"); addTrain_ {
		run(opts, addTrain)
	} else if updateTrain_, _ := opts.Bool("update-train"); updateTrain_ {
		run(opts, updateTrain)
	} else if deleteTrain_, _ := opts.Bool("delete-train"); deleteTrain_ {
		run(opts, deleteTrain)
	} else if addStretch_, _ := opts.Bool("add-stretch"); addStretch_ {
		run(opts, addStretch)
	} else if updateStretch_, _ := opts.Bool("update-stretch"); updateStretch_ {
		run(opts, updateStretch)
	} else if deleteStretch_, _ := opts.Bool("delete-stretch"); deleteStretch_ {
		run(opts, deleteStretch)
	} else if addSignal_, _ := opts.Bool("add-signal"); addSignal_ {
		run(opts, addSignal)
	} else if updateSignal_, _ := opts.Bool("update-signal"); updateSignal_ {
		run(opts, updateSignal)
	} else if deleteSignal_, _ := opts.Bool("delete-signal"); deleteSignal_ {
		run(opts, deleteSignal)
	} else if jumpStart_, _ := opts.Bool("jump-start"); jumpStart_ {
		run(opts, jumpStart)
	} else if stop_, _ := opts.Bool("stop"); stop_ {
		run(opts, stop)
	} else if stopAtSignal_, _ := opts.Bool("stop-at-signal"); stopAtSignal_ {
		run(opts, stopAtSignal)
	} else if cancelStop_, _ := opts.Bool("cancel-stop"); cancelStop_ {
		run(opts, cancelStop)
	} else if switchPassthrough_, _ := opts.Bool("switch-passthrough"); switchPassthrough_ {
		run(opts, signalCommand((*connect.Client).SwitchPassthrough))
	} else if switchDetour_, _ := opts.Bool("switch-detour"); switchDetour_ {
		run(opts, signalCommand((*connect.Client).SwitchDetour))
	} else if forceRed_, _ := opts.Bool("force-red"); forceRed_ {
		run(opts, signalCommand((*connect.Client).ForceRed))
	} else if unforceRed_, _ := opts.Bool("unforce-red"); unforceRed_ {
		run(opts, signalCommand((*connect.Client).UnforceRed))
	} else if moveSignalUp_, _ := opts.Bool("move-signal-up"); moveSignalUp_ {
		run(opts, signalCommand((*connect.Client).MoveSignalUp))
	} else if moveSignalDown_, _ := opts.Bool("move-signal-down"); moveSignalDown_ {
		run(opts, signalCommand((*connect.Client).MoveSignalDown))
	} else if eventLog_, _ := opts.Bool("event-log"); eventLog_ {
		run(opts, eventLog)
	}
}

type command struct {
	ctx      context.Context
	opts     docopt.Opts
	client   *connect.Client
	settings *connect.ClientSettings
	color    bool
}

// each call gets its own deadline
func (self *command) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(self.ctx, self.settings.CallTimeout())
}

func (self *command) load() error {
	callCtx, cancel := self.callCtx()
	defer cancel()
	return self.client.Load(callCtx)
}

func run(opts docopt.Opts, fn func(*command) error) {
	settings, err := clientSettings(opts)
	if err != nil {
		Err.Printf("%s\n", err)
		os.Exit(2)
	}

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	// the handshake timeout bounds the dial. `ctx` bounds the session.
	client, err := connect.Connect(ctx, settings)
	if err != nil {
		Err.Printf("Could not connect (%s).\n", err)
		os.Exit(1)
	}
	defer client.Close()

	c := &command{
		ctx:      ctx,
		opts:     opts,
		client:   client,
		settings: settings,
		color:    term.IsTerminal(int(os.Stdout.Fd())),
	}
	if err := fn(c); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		Err.Printf("%s\n", err)
		client.Close()
		os.Exit(1)
	}
}

func clientSettings(opts docopt.Opts) (*connect.ClientSettings, error) {
	settings := connect.DefaultClientSettings()
	if config, err := opts.String("--config"); err == nil {
		settings, err = connect.LoadClientSettings(config)
		if err != nil {
			return nil, err
		}
	}
	if url, err := opts.String("--url"); err == nil {
		settings.RawUrl = url
	}
	if token, err := opts.String("--token"); err == nil {
		if token == "-" {
			fmt.Print("Enter token: ")
			tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Print("\n")
			if err != nil {
				return nil, err
			}
			token = strings.TrimSpace(string(tokenBytes))
		}
		settings.Token = token
	}
	if timeoutStr, err := opts.String("--timeout"); err == nil {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("Bad timeout %s: %w", timeoutStr, err)
		}
		settings.Timeouts.Call = timeout.Seconds()
	}
	if policyStr, err := opts.String("--policy"); err == nil {
		policy, err := connect.ParseCallKeyPolicy(policyStr)
		if err != nil {
			return nil, err
		}
		settings.CallKeyPolicy = policy
	}
	return settings, nil
}

func intArg(opts docopt.Opts, key string) (int, error) {
	s, err := opts.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("Bad %s %s: %w", key, s, err)
	}
	return n, nil
}

func signalIdArg(opts docopt.Opts) (protocol.SignalId, error) {
	return signalIdOpt(opts, "<signal_id>")
}

func signalIdOpt(opts docopt.Opts, key string) (protocol.SignalId, error) {
	s, err := opts.String(key)
	if err != nil {
		return protocol.SignalId{}, err
	}
	return protocol.ParseSignalId(s)
}

func speedLimitArg(opts docopt.Opts) (protocol.SpeedLimit, error) {
	s, err := opts.String("--speed_limit")
	if err != nil {
		return protocol.SpeedLimitFast, nil
	}
	for _, speedLimit := range []protocol.SpeedLimit{
		protocol.SpeedLimitSlow,
		protocol.SpeedLimitHalf,
		protocol.SpeedLimitFast,
	} {
		if speedLimit.String() == s {
			return speedLimit, nil
		}
	}
	return protocol.SpeedLimitFast, fmt.Errorf("Bad speed limit %s.", s)
}

// prints the server outcome. A rejection is an error.
func printResult(result *protocol.Result) error {
	if err := result.Err(); err != nil {
		return err
	}
	Out.Printf("ok\n")
	return nil
}

var aspectColors = map[protocol.SignalAspect]string{
	protocol.SignalAspectClear:              "\033[32m",
	protocol.SignalAspectPreliminaryCaution: "\033[33m",
	protocol.SignalAspectCaution:            "\033[33;1m",
	protocol.SignalAspectDanger:             "\033[31m",
}

func (self *command) aspect(aspect protocol.SignalAspect) string {
	label := aspect.String()
	if label == "" {
		label = "-"
	}
	if color, ok := aspectColors[aspect]; ok && self.color {
		return color + label + "\033[0m"
	}
	return label
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (self *command) printTrain(view *connect.TrainView) {
	train := view.Train
	Out.Printf(
		"%d %q speeds=%d/%d/%d online=%t started=%t last=%s passed=%s stop_at=%s\n",
		train.Id,
		train.Name,
		train.SpeedSlow,
		train.SpeedHalf,
		train.SpeedFast,
		train.Online,
		train.Started,
		dash(view.LastSignalId),
		dash(view.LastPassedAspectLabel),
		dash(view.SignalToStopAtId),
	)
}

func (self *command) printStretch(stretch protocol.Stretch) {
	Out.Printf("%d %q %s\n", stretch.Id, stretch.Name, stretch.Type)
}

func (self *command) printSignal(view *connect.SignalView) {
	signal := view.Signal
	route := ""
	if signal.Switch {
		if signal.Passthrough {
			route = " passthrough"
		} else {
			route = " detour=" + dash(view.DetourId)
		}
		if signal.CurrentlySwitching {
			route += " switching"
		} else if signal.QueuedForSwitching {
			route += " queued"
		}
		if signal.SwitchFailure {
			route += " failed"
		}
	}
	forceRed := ""
	if signal.ForceRed {
		forceRed = " force-red"
	}
	Out.Printf(
		"%s %q stretch=%s %s limit=%s%s%s\n",
		view.Id,
		signal.Name,
		dash(view.StretchName),
		self.aspect(signal.Aspect),
		signal.SpeedLimit,
		route,
		forceRed,
	)
}

func trains(c *command) error {
	if err := c.load(); err != nil {
		return err
	}
	for _, view := range connect.TrainViews(c.client.Store()) {
		c.printTrain(view)
	}
	return nil
}

func stretches(c *command) error {
	if err := c.load(); err != nil {
		return err
	}
	for _, stretch := range c.client.Store().Stretches.List() {
		c.printStretch(stretch)
	}
	return nil
}

func signals(c *command) error {
	if err := c.load(); err != nil {
		return err
	}
	for _, view := range connect.SignalViews(c.client.Store()) {
		c.printSignal(view)
	}
	return nil
}

// prints the loaded state then every change until interrupted
func watch(c *command) error {
	if err := c.load(); err != nil {
		return err
	}
	store := c.client.Store()
	for _, view := range connect.TrainViews(store) {
		c.printTrain(view)
	}
	for _, stretch := range store.Stretches.List() {
		c.printStretch(stretch)
	}
	for _, view := range connect.SignalViews(store) {
		c.printSignal(view)
	}

	unsubTrains := store.Trains.AddChangeCallback(func(change *connect.Change[int, protocol.Train]) {
		switch change.Kind {
		case connect.ChangeLoad:
			Out.Printf("[train] load %d\n", change.Len)
		case connect.ChangeRemove:
			Out.Printf("[train] remove %d\n", change.Key)
		default:
			Out.Printf("[train] %s ", change.Kind)
			c.printTrain(connect.NewTrainView(change.Entity))
		}
	})
	defer unsubTrains()
	unsubStretches := store.Stretches.AddChangeCallback(func(change *connect.Change[int, protocol.Stretch]) {
		switch change.Kind {
		case connect.ChangeLoad:
			Out.Printf("[stretch] load %d\n", change.Len)
		case connect.ChangeRemove:
			Out.Printf("[stretch] remove %d\n", change.Key)
		default:
			Out.Printf("[stretch] %s ", change.Kind)
			c.printStretch(change.Entity)
		}
	})
	defer unsubStretches()
	unsubSignals := store.Signals.AddChangeCallback(func(change *connect.Change[protocol.SignalId, protocol.Signal]) {
		switch change.Kind {
		case connect.ChangeLoad:
			Out.Printf("[signal] load %d\n", change.Len)
		case connect.ChangeRemove:
			Out.Printf("[signal] remove %s\n", change.Key)
		default:
			Out.Printf("[signal] %s ", change.Kind)
			c.printSignal(connect.NewSignalView(change.Entity, store.Stretches))
		}
	})
	defer unsubSignals()

	go func() {
		<-c.ctx.Done()
		c.client.Close()
	}()
	err := c.client.Run()
	if c.ctx.Err() != nil {
		return nil
	}
	return err
}

func addTrain(c *command) error {
	name, _ := c.opts.String("--name")
	train := &protocol.Train{
		Name: name,
	}
	var err error
	if train.SpeedSlow, err = intArg(c.opts, "--slow"); err != nil {
		return err
	}
	if train.SpeedHalf, err = intArg(c.opts, "--half"); err != nil {
		return err
	}
	if train.SpeedFast, err = intArg(c.opts, "--fast"); err != nil {
		return err
	}

	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.InsertTrain(callCtx, train)
	if err != nil {
		return err
	}
	return printResult(result)
}

// overlays the given flags on the current record
func updateTrain(c *command) error {
	trainId, err := intArg(c.opts, "<train_id>")
	if err != nil {
		return err
	}
	if err := c.load(); err != nil {
		return err
	}
	train, ok := c.client.Store().Trains.Get(trainId)
	if !ok {
		return fmt.Errorf("Train %d not found.", trainId)
	}
	if name, err := c.opts.String("--name"); err == nil {
		train.Name = name
	}
	for key, speed := range map[string]*int{
		"--slow": &train.SpeedSlow,
		"--half": &train.SpeedHalf,
		"--fast": &train.SpeedFast,
	} {
		if c.opts[key] == nil {
			continue
		}
		if *speed, err = intArg(c.opts, key); err != nil {
			return err
		}
	}

	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.UpdateTrain(callCtx, &train)
	if err != nil {
		return err
	}
	return printResult(result)
}

func deleteTrain(c *command) error {
	trainId, err := intArg(c.opts, "<train_id>")
	if err != nil {
		return err
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.DeleteTrain(callCtx, trainId)
	if err != nil {
		return err
	}
	return printResult(result)
}

func addStretch(c *command) error {
	name, _ := c.opts.String("--name")
	stretchType := int(protocol.StretchTypeOneWaySingleTrack)
	if c.opts["--stretch_type"] != nil {
		var err error
		if stretchType, err = intArg(c.opts, "--stretch_type"); err != nil {
			return err
		}
	}
	stretch := &protocol.Stretch{
		Name: name,
		Type: protocol.StretchType(stretchType),
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.InsertStretch(callCtx, stretch)
	if err != nil {
		return err
	}
	return printResult(result)
}

// overlays the given flags on the current record
func updateStretch(c *command) error {
	stretchId, err := intArg(c.opts, "<stretch_id>")
	if err != nil {
		return err
	}
	if err := c.load(); err != nil {
		return err
	}
	stretch, ok := c.client.Store().Stretches.Get(stretchId)
	if !ok {
		return fmt.Errorf("Stretch %d not found.", stretchId)
	}
	if name, err := c.opts.String("--name"); err == nil {
		stretch.Name = name
	}
	if c.opts["--stretch_type"] != nil {
		stretchType, err := intArg(c.opts, "--stretch_type")
		if err != nil {
			return err
		}
		stretch.Type = protocol.StretchType(stretchType)
	}

	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.UpdateStretch(callCtx, &stretch)
	if err != nil {
		return err
	}
	return printResult(result)
}

func deleteStretch(c *command) error {
	stretchId, err := intArg(c.opts, "<stretch_id>")
	if err != nil {
		return err
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.DeleteStretch(callCtx, stretchId)
	if err != nil {
		return err
	}
	return printResult(result)
}

func addSignal(c *command) error {
	stretchId, err := intArg(c.opts, "<stretch_id>")
	if err != nil {
		return err
	}
	name, _ := c.opts.String("--name")
	signal := &protocol.Signal{
		StretchId: stretchId,
		Name:      name,
	}
	if signal.SpeedLimit, err = speedLimitArg(c.opts); err != nil {
		return err
	}

	splitter, _ := c.opts.Bool("--splitter")
	merger, _ := c.opts.Bool("--merger")
	if splitter || merger {
		signal.Switch = true
		signal.Splitter = &splitter
		signal.Passthrough = true
	}
	if c.opts["--detour"] != nil {
		detourId, err := signalIdOpt(c.opts, "--detour")
		if err != nil {
			return err
		}
		signal.StretchDetourId = &detourId.StretchId
		signal.SignalDetourId = &detourId.Id
	}
	if c.opts["--loop_back"] != nil {
		loopBackId, err := signalIdOpt(c.opts, "--loop_back")
		if err != nil {
			return err
		}
		signal.LoopsBack = true
		signal.StretchLoopBackId = &loopBackId.StretchId
		signal.SignalLoopBackId = &loopBackId.Id
	}

	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.InsertSignal(callCtx, signal)
	if err != nil {
		return err
	}
	return printResult(result)
}

// overlays the given flags on the current record
func updateSignal(c *command) error {
	signalId, err := signalIdArg(c.opts)
	if err != nil {
		return err
	}
	if err := c.load(); err != nil {
		return err
	}
	signal, ok := c.client.Store().Signals.Get(signalId)
	if !ok {
		return fmt.Errorf("Signal %s not found.", signalId)
	}
	if name, err := c.opts.String("--name"); err == nil {
		signal.Name = name
	}
	if c.opts["--speed_limit"] != nil {
		if signal.SpeedLimit, err = speedLimitArg(c.opts); err != nil {
			return err
		}
	}

	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.UpdateSignal(callCtx, &signal)
	if err != nil {
		return err
	}
	return printResult(result)
}

func deleteSignal(c *command) error {
	signalId, err := signalIdArg(c.opts)
	if err != nil {
		return err
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.DeleteSignal(callCtx, signalId)
	if err != nil {
		return err
	}
	return printResult(result)
}

func jumpStart(c *command) error {
	trainId, err := intArg(c.opts, "<train_id>")
	if err != nil {
		return err
	}
	signalId, err := signalIdArg(c.opts)
	if err != nil {
		return err
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.ManuallyJumpStartTrain(callCtx, trainId, signalId)
	if err != nil {
		return err
	}
	return printResult(result)
}

func stop(c *command) error {
	trainId, err := intArg(c.opts, "<train_id>")
	if err != nil {
		return err
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.ManuallyStopTrain(callCtx, trainId)
	if err != nil {
		return err
	}
	return printResult(result)
}

func stopAtSignal(c *command) error {
	trainId, err := intArg(c.opts, "<train_id>")
	if err != nil {
		return err
	}
	signalId, err := signalIdArg(c.opts)
	if err != nil {
		return err
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.ManuallyStopTrainAtSignal(callCtx, trainId, signalId)
	if err != nil {
		return err
	}
	return printResult(result)
}

func cancelStop(c *command) error {
	trainId, err := intArg(c.opts, "<train_id>")
	if err != nil {
		return err
	}
	callCtx, cancel := c.callCtx()
	defer cancel()
	result, err := c.client.ManuallyCancelStopTrainAtSignal(callCtx, trainId)
	if err != nil {
		return err
	}
	return printResult(result)
}

type signalActionFn func(*connect.Client, context.Context, protocol.SignalId) (*protocol.Result, error)

func signalCommand(fn signalActionFn) func(*command) error {
	return func(c *command) error {
		signalId, err := signalIdArg(c.opts)
		if err != nil {
			return err
		}
		callCtx, cancel := c.callCtx()
		defer cancel()
		result, err := fn(c.client, callCtx, signalId)
		if err != nil {
			return err
		}
		return printResult(result)
	}
}

func eventLog(c *command) error {
	query := &protocol.EventLogQuery{}
	if sinceStr, err := c.opts.String("--since"); err == nil {
		since, err := time.ParseDuration(sinceStr)
		if err != nil {
			return fmt.Errorf("Bad since %s: %w", sinceStr, err)
		}
		timeStart := time.Now().Add(-since)
		query.TimeStart = &timeStart
	}
	if eventTypeStr, err := c.opts.String("--event_type"); err == nil {
		eventType, err := protocol.ParseEventLogType(eventTypeStr)
		if err != nil {
			return err
		}
		query.Type = &eventType
	}

	callCtx, cancel := c.callCtx()
	defer cancel()
	eventLogs, err := c.client.EventLog(callCtx, query)
	if err != nil {
		return err
	}
	for _, eventLog := range eventLogs {
		Out.Printf("%s %s %s\n", eventLog.Time.Local().Format(time.DateTime), eventLog.Type, eventLog.Details)
	}
	return nil
}
