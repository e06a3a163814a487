package main

import (
	"context"
	"flag"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	service := flag.String("service", "meeting.protocol.JobService", "Health service name, empty for overall status")
	watch := flag.Bool("watch", false, "Stream status changes until interrupted")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("Connected to server")

	client := grpc_health_v1.NewHealthClient(conn)
	req := &grpc_health_v1.HealthCheckRequest{Service: *service}

	if !*watch {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := client.Check(ctx, req)
		if err != nil {
			log.Fatalf("health check failed: %v", err)
		}
		log.Printf("Status: service=%q status=%s", *service, resp.GetStatus())
		return
	}

	stream, err := client.Watch(context.Background(), req)
	if err != nil {
		log.Fatalf("failed to watch: %v", err)
	}
	for {
		resp, err := stream.Recv()
		if err != nil {
			log.Fatalf("watch ended: %v", err)
		}
		log.Printf("Status changed: service=%q status=%s", *service, resp.GetStatus())
	}
}
