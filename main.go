package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coinflip-labs/coinflip/handlers"
	"github.com/coinflip-labs/coinflip/pkg/metrics"
	"github.com/coinflip-labs/coinflip/pkg/rewrite"

	"github.com/akamensky/argparse"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/term"
)

var version = "0.1.0"

const banner = `
╔═╗╔═╗╦╔╗╔╔═╗╦  ╦╔═╗
║  ║ ║║║║║╠╣ ║  ║╠═╝
╚═╝╚═╝╩╝╚╝╚  ╩═╝╩╩
`

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func main() {
	parser := argparse.NewParser("coinflip", "Serves a randomly chosen variant of a webpage, rewritten on the way through")

	port := parser.String("p", "port", &argparse.Options{
		Required: false,
		Default:  getenv("PORT", "8080"),
		Help:     "Port the webserver listens on",
	})
	opsPort := parser.String("", "ops-port", &argparse.Options{
		Required: false,
		Default:  getenv("OPS_PORT", "2112"),
		Help:     "Port for the health, metrics and ruleset endpoints",
	})

	timeout := 15
	if timeoutStr := os.Getenv("HTTP_TIMEOUT"); timeoutStr != "" {
		timeout, _ = strconv.Atoi(timeoutStr)
	}
	timeoutFlag := parser.Int("t", "timeout", &argparse.Options{
		Required: false,
		Default:  timeout,
		Help:     "Upstream request timeout in seconds",
	})

	showVersion := parser.Flag("v", "version", &argparse.Options{
		Required: false,
		Help:     "Print the version and exit",
	})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println("coinflip " + version)
		os.Exit(0)
	}

	reg := prometheus.NewRegistry()
	rules := rewrite.Default()

	cfg := handlers.SiteConfig{
		VariantsURL: os.Getenv("VARIANTS_URL"),
		Timeout:     time.Duration(*timeoutFlag) * time.Second,
		UserAgent:   os.Getenv("USER_AGENT"),
		Rules:       rules,
		Metrics:     metrics.New(reg),
	}

	go func() {
		addr := ":" + *opsPort
		log.Printf("Ops endpoints listening on %s", addr)
		if err := http.ListenAndServe(addr, handlers.OpsRouter(reg, rules)); err != nil {
			log.Printf("ERROR: ops listener: %v", err)
		}
	}()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get("/raw", handlers.Raw(cfg))
	app.Get("/api", handlers.API(version, cfg))
	app.All("/*", handlers.VariantSite(cfg))

	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(banner)
	}
	log.Printf("coinflip %s listening on :%s", version, *port)
	log.Fatal(app.Listen(":" + *port))
}
