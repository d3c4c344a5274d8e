package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gomphodon/gomphodon/db"
	"github.com/gomphodon/gomphodon/federation"
	"github.com/gomphodon/gomphodon/util"
	"github.com/gomphodon/gomphodon/web"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	log.Println("Running database migrations...")
	database := db.GetDB()
	if err := database.RunMigrations(); err != nil {
		log.Fatalln(err)
	}

	client := &http.Client{Timeout: 30 * time.Second}

	resolver := federation.NewKeyResolver(client)
	verifier := federation.NewVerifier(resolver)
	actors := federation.NewActorFetcher(client, database)
	crawler := federation.NewCrawler(client)
	ingestor := federation.NewIngestor(database)
	backfiller := federation.NewBackfiller(actors, crawler, ingestor, int64(conf.Conf.BackfillParallel))
	outbox := federation.NewOutbox(database, client, conf, backfiller)
	inbox := federation.NewInbox(database, actors, ingestor, outbox)

	if conf.Conf.WithAp {
		worker := federation.NewDeliveryWorker(database, client, conf)
		worker.Start()
	}

	deps := &web.Deps{
		Verifier: verifier,
		Inbox:    inbox,
		Outbox:   outbox,
		Backfill: backfiller,
	}

	if err := web.Router(conf, deps); err != nil {
		log.Fatalln(err)
	}
}
