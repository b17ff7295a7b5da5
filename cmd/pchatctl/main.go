package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/matheus3301/pchat/internal/api"
	"github.com/matheus3301/pchat/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	conn, err := grpc.NewClient(
		"unix://"+session.SocketPath(sessionName),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	switch args[0] {
	case "status":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cmdStatus(ctx, client, *jsonFlag)
	case "watch":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		service := api.ServiceConversation
		if len(args) >= 2 {
			service = args[1]
		}
		cmdWatch(ctx, client, service, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: pchatctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status             Show conversation and live channel health")
	fmt.Fprintln(os.Stderr, "  watch [service]    Stream health changes (default "+api.ServiceConversation+")")
}

func cmdStatus(ctx context.Context, c healthpb.HealthClient, jsonOut bool) {
	failed := false
	for _, service := range []string{api.ServiceConversation, api.ServiceLive} {
		resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %s: %v\n", service, err)
			failed = true
			continue
		}
		printStatus(service, resp, jsonOut)
	}
	if failed {
		os.Exit(1)
	}
}

func cmdWatch(ctx context.Context, c healthpb.HealthClient, service string, jsonOut bool) {
	stream, err := c.Watch(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printStatus(service, resp, jsonOut)
	}
}

func printStatus(service string, resp *healthpb.HealthCheckResponse, jsonOut bool) {
	if jsonOut {
		b, err := protojson.Marshal(resp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
			return
		}
		fmt.Printf("{\"service\":%q,\"response\":%s}\n", service, b)
		return
	}
	fmt.Printf("%-20s %s\n", service, resp.GetStatus())
}
