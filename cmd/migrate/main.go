package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/example/bannerdesk/migrations"
)

var version = "dev"

func main() {
	fmt.Printf("bannerdesk-migrate version %s\n", version)

	dsn := os.Getenv("BANNERDESK_DB_DSN")
	if dsn == "" {
		fmt.Println("BANNERDESK_DB_DSN is required")
		os.Exit(1)
	}
	defaultDriver := os.Getenv("BANNERDESK_DB_DRIVER")
	if defaultDriver == "" {
		defaultDriver = "mysql"
	}
	driver := flag.String("driver", defaultDriver, "database driver: mysql or sqlite")
	dir := flag.String("dir", "up", "migration direction: up, down or version")
	flag.Parse()

	var err error
	switch *dir {
	case "up":
		err = migrations.Up(*driver, dsn)
	case "down":
		err = migrations.Down(*driver, dsn)
	case "version":
		var (
			v     uint
			dirty bool
			ok    bool
		)
		v, dirty, ok, err = migrations.Version(*driver, dsn)
		if err == nil {
			if !ok {
				fmt.Println("no migrations applied")
			} else {
				fmt.Printf("version %d (dirty=%t)\n", v, dirty)
			}
		}
	default:
		err = fmt.Errorf("unknown direction: %s", *dir)
	}
	if err != nil {
		fmt.Println("migration error:", err)
		os.Exit(1)
	}
}
