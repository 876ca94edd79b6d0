// Command line client of Tinode built on the Go SDK: logs in, lists contacts, prints and
// publishes messages.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/version"

	"github.com/tinode/tinodesdk/drafty"
	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/tinode"

	// SQL cache selectable in the config file.
	_ "github.com/tinode/tinodesdk/store/sqldb"
)

var (
	configFile = flag.String("config", "", "path to the JSON config file, overrides host and api_key")
	logFlags   = flag.String("log_flags", "stdFlags", "comma-separated list of log flags")
	host       = flag.String("host", "localhost:6060", "address of Tinode server")
	apiKey     = flag.String("api_key", "AQEAAAABAAD_rAp4DJh05a1HAwFT3A6K", "API key")
	secure     = flag.Bool("secure", false, "use TLS")
	loginBasic = flag.String("login-basic", "", "login using basic authentication username:password")
	loginToken = flag.String("login-token", "", "login using a token")
	contacts   = flag.Bool("contacts", false, "list contacts")
	topicName  = flag.String("topic", "", "topic to subscribe to and print messages from")
	publish    = flag.String("publish", "", "message to publish to the topic")
	useDrafty  = flag.Bool("drafty", false, "parse the published message as formatted text")
	listen     = flag.Duration("listen", 0, "keep printing messages for this long, forever if negative")
	metricsAt  = flag.String("metrics_at", "", "host:port to serve client metrics at")
	dumpStats  = flag.Bool("dump_metrics", false, "print client metrics on exit")
	verbose    = flag.Bool("verbose", false, "log every message sent and received")
	timeout    = flag.Duration("timeout", 10*time.Second, "timeout of every request")
)

func main() {
	flag.Parse()
	logs.Init(os.Stderr, *logFlags)

	config, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	listener := &tinode.EventListener{
		OnDisconnect: func(byServer bool, code int, reason string) {
			logs.Info.Println("disconnected", code, reason)
		},
	}
	client, err := tinode.NewClient(config, tinode.Options{Listener: listener, Verbose: *verbose})
	if err != nil {
		log.Fatal("failed to create client: ", err)
	}
	defer client.Disconnect()

	registry := prometheus.NewRegistry()
	registry.MustRegister(client.Metrics())
	if *dumpStats {
		defer dumpMetrics(registry)
	}
	if *metricsAt != "" {
		go serveMetrics(registry, *metricsAt)
	}

	if _, err := wait(client.Connect(context.Background())); err != nil {
		log.Fatal("failed to connect: ", err)
	}
	logs.Info.Println("connected to", config.Host, "server", client.ServerVersion(), client.ServerBuild())

	if err := login(client); err != nil {
		log.Fatal("login failed: ", err)
	}
	logs.Info.Println("logged in as", client.MyUID())

	if *contacts {
		if err := listContacts(client); err != nil {
			log.Fatal("failed to fetch contacts: ", err)
		}
	}

	if *topicName == "" {
		return
	}
	topic := client.NewTopic(*topicName, &tinode.TopicListener{
		OnData: printMessage,
		OnInfo: func(info *model.MsgServerInfo) {
			if info.What == model.NoteKeyPress {
				fmt.Printf("[%s] %s is typing\n", info.Topic, info.From)
			}
		},
		OnLeave: func(unsub bool, code int, text string) {
			logs.Info.Println("left", *topicName, code, text)
		},
	})
	if _, err := wait(topic.Subscribe(nil, nil)); err != nil {
		log.Fatal("failed to subscribe: ", err)
	}

	if *publish != "" {
		var content any = *publish
		if *useDrafty {
			content = drafty.Parse(*publish)
		}
		if _, err := wait(topic.Publish(content, nil)); err != nil {
			log.Fatal("failed to publish: ", err)
		}
		logs.Info.Println("published to", topic.Name(), "seq", topic.Seq())
	}

	if *listen != 0 {
		waitForSignal(*listen)
	}
	topic.NoteRead(0)
	wait(topic.Leave(false))
}

func loadConfig() (*tinode.Config, error) {
	if *configFile != "" {
		return tinode.LoadConfig(*configFile)
	}
	return &tinode.Config{
		Host:    *host,
		APIKey:  *apiKey,
		Secure:  *secure,
		AppName: "tn-cli",
		Lang:    "en-US",
	}, nil
}

func wait(p *tinode.PromisedReply) (*model.ServerComMessage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	return p.Wait(ctx)
}

func login(client *tinode.Client) error {
	switch {
	case *loginToken != "":
		if _, err := base64.StdEncoding.DecodeString(*loginToken); err != nil {
			return fmt.Errorf("invalid token: %w", err)
		}
		_, err := wait(client.LoginToken(*loginToken, nil))
		return err
	case *loginBasic != "":
		uname, password, ok := strings.Cut(*loginBasic, ":")
		if !ok {
			return errors.New("invalid format for --login-basic, expected username:password")
		}
		_, err := wait(client.LoginBasic(uname, password))
		return err
	}
	return errors.New("either --login-basic or --login-token must be provided")
}

func listContacts(client *tinode.Client) error {
	me := client.GetMeTopic()
	if _, err := wait(me.Subscribe(nil, nil)); err != nil {
		return err
	}
	defer func() { wait(me.Leave(false)) }()

	// Contacts arrive after the {ctrl} of the subscription.
	if _, err := wait(me.GetMeta(me.MetaGetBuilder().WithSub(nil, 0).Build())); err != nil {
		return err
	}

	for _, sub := range me.Contacts() {
		name := sub.Topic
		if sub.Public != nil && sub.Public.Fn != "" {
			name += " (" + sub.Public.Fn + ")"
		}
		unread := sub.Seq - sub.Read
		if unread < 0 {
			unread = 0
		}
		online := ""
		if sub.Online {
			online = " online"
		}
		fmt.Printf("%-40s unread %d%s\n", name, unread, online)
	}
	return nil
}

func printMessage(data *model.MsgServerData) {
	doc, err := drafty.Decode(data.Content)
	if err != nil || doc == nil {
		fmt.Printf("[%s] #%d %s: %s\n", data.Topic, data.SeqId, data.From, string(data.Content))
		return
	}
	fmt.Printf("[%s] #%d %s: %s\n", data.Topic, data.SeqId, data.From,
		drafty.Format[string](doc, drafty.PlainTextFormatter{}))
}

// waitForSignal blocks until interrupted or until d expires. Negative d waits for the signal only.
func waitForSignal(d time.Duration) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	var expired <-chan time.Time
	if d > 0 {
		expired = time.After(d)
	}
	select {
	case <-stop:
	case <-expired:
	}
}

func serveMetrics(registry *prometheus.Registry, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.InstrumentMetricHandler(registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{ErrorLog: logs.Warn, Timeout: *timeout})))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tn-cli " + version.Info() + "\n"))
	})
	logs.Info.Printf("serving metrics at %s/metrics", addr)
	logs.Err.Println(http.ListenAndServe(addr, handlers.CombinedLoggingHandler(os.Stderr, mux)))
}

func dumpMetrics(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		logs.Warn.Println("failed to gather metrics", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stdout, mf); err != nil {
			logs.Warn.Println("failed to write metrics", err)
			return
		}
	}
}
