package main

import (
	"os"

	"github.com/DRSN-tech/search-assistant/internal/app"
	config "github.com/DRSN-tech/search-assistant/internal/cfg"
	"github.com/DRSN-tech/search-assistant/pkg/logger"
)

//	@title			Search Assistant API
//	@version		1.0
//	@description	Гибридный поиск товаров: сгенерированный SQL и поиск по эмбеддингам.
//	@host			localhost:8080
//	@BasePath		/api/v1

func main() {
	log, err := logger.NewZapLogger(os.Getenv("LOG_MODE"))
	if err != nil {
		os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(log)
	if err != nil {
		log.Errorf(err, "failed to load config")
		os.Exit(1)
	}

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Errorf(err, "failed to initialize app")
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		log.Sync()
		os.Exit(1)
	}
}
