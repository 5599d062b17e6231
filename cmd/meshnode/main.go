// cmd/meshnode is the main entrypoint for a mesh replica.
//
// Configuration is entirely via flags so a single binary can
// serve any role in the mesh, matching the teacher's cmd/server/main.go.
//
// Example — three-node mesh on loopback:
//
//	./meshnode --id node1 --port 5001
//	./meshnode --id node2 --port 5002 --bootstrap localhost:5001
//	./meshnode --id node3 --port 5003 --bootstrap localhost:5001,localhost:5002
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"meshkv/internal/httpapi"
	"meshkv/internal/meshnode"
)

func main() {
	nodeID := flag.String("id", "node1", "Unique node identifier")
	port := flag.Int("port", 5000, "UDP port to listen on for mesh traffic")
	bootstrap := flag.String("bootstrap", "", "Comma-separated list of seed peers: host:port")
	syncInterval := flag.Duration("sync-interval", meshnode.DefaultSyncInterval, "Anti-entropy sync period")
	heartbeatInterval := flag.Duration("heartbeat-interval", meshnode.DefaultHeartbeatInterval, "Heartbeat/liveness period")
	httpAddr := flag.String("http-addr", "", "Optional admin HTTP surface address (e.g. :9090); empty disables it")
	flag.Parse()

	n, err := meshnode.New(*nodeID, *port, meshnode.Options{
		SyncInterval:      *syncInterval,
		HeartbeatInterval: *heartbeatInterval,
	})
	if err != nil {
		log.Fatalf("FATAL: create node: %v", err)
	}

	if *bootstrap != "" {
		for _, entry := range strings.Split(*bootstrap, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			host, portStr, err := net.SplitHostPort(entry)
			if err != nil {
				log.Fatalf("FATAL: invalid bootstrap peer %q: expected host:port", entry)
			}
			bPort, err := strconv.Atoi(portStr)
			if err != nil {
				log.Fatalf("FATAL: invalid bootstrap peer port %q: %v", entry, err)
			}
			if err := n.AddBootstrapPeer(host, bPort); err != nil {
				log.Fatalf("FATAL: add bootstrap peer %q: %v", entry, err)
			}
		}
	}

	n.Start()
	log.Printf("meshnode: %s listening on UDP :%d (sync=%s heartbeat=%s)", *nodeID, *port, *syncInterval, *heartbeatInterval)

	var srv *http.Server
	if *httpAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(httpapi.Logger(n), httpapi.Recovery(n))
		httpapi.NewHandler(n).Register(router)

		srv = &http.Server{
			Addr:         *httpAddr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("meshnode: admin HTTP surface on %s", *httpAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("FATAL: admin http server: %v", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("meshnode: shutting down", *nodeID)

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("meshnode: admin http shutdown error: %v", err)
		}
	}

	n.Stop()
	fmt.Println("meshnode: stopped")
}
