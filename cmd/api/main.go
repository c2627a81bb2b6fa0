// Package main (in api-subfolder) provides launch of the HTTP application
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/ClearCut/internal/config"
	"github.com/UnendingLoop/ClearCut/internal/download"
	"github.com/UnendingLoop/ClearCut/internal/events"
	"github.com/UnendingLoop/ClearCut/internal/kafka"
	"github.com/UnendingLoop/ClearCut/internal/mwlogger"
	"github.com/UnendingLoop/ClearCut/internal/remover"
	"github.com/UnendingLoop/ClearCut/internal/service"
	"github.com/UnendingLoop/ClearCut/internal/storage"
	"github.com/UnendingLoop/ClearCut/internal/transport"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %s\nExiting app...", err)
	}

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.App.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	if cfg.Remote.APIKey == "" {
		zlog.Logger.Warn().Msg("GEMINI_API_KEY is empty: every image will fail with a configuration error")
	}

	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключиться к хранилищу превью
	strg, err := storage.NewImgStorage(ctx, cfg.Storage, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to init IMG-storage: %v", err)
	}

	dlv, err := download.NewDeliverer(cfg.Delivery, strg)
	if err != nil {
		log.Fatalf("Failed to init deliverer: %v", err)
	}

	rm := remover.WithTimeout(remover.NewGeminiRemover(cfg.Remote.APIKey, cfg.Remote.Model), cfg.Remote.Timeout)

	// создаем экземпляр сервиса
	var svc ImageAPIService = service.NewOrchestrator(rm, strg, dlv,
		service.WithConcurrency(cfg.Batch.Concurrency),
		service.WithDownloadInterval(cfg.Batch.DownloadInterval),
	)

	// события в кафку - опционально
	var pub *wbfkafka.Producer
	if cfg.Kafka.Enabled() {
		pub = startEventSink(ctx, cfg.Kafka, svc)
	}

	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewImageHandler(svc)
	// сетапим сервер
	engine := ginext.New(cfg.App.GinMode)

	engine.GET("/ping", handlers.SimplePinger)
	engine.POST("/images/upload", handlers.Upload)          // загрузка пачки картинок
	engine.GET("/images", handlers.GetAllImages)            // снапшот коллекции
	engine.GET("/images/stats", handlers.GetStats)          // счетчики
	engine.GET("/images/events", handlers.Events)           // SSE-поток снапшотов
	engine.DELETE("/images/:id", handlers.Delete)           // удаление одной
	engine.DELETE("/images", handlers.Clear)                // удаление всех
	engine.POST("/images/process", handlers.ProcessAll)     // батч
	engine.POST("/images/:id/process", handlers.ProcessOne) // одна картинка
	engine.GET("/images/:id/result", handlers.LoadResult)   // скачать результат
	engine.GET("/images/:id/preview", handlers.LoadPreview) // превью исходника/результата
	engine.POST("/images/:id/download", handlers.DownloadOne)
	engine.POST("/images/download", handlers.DownloadAll)

	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: mwlogger.NewMWLogger(engine),
	}

	// Server launch
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				log.Println("Server gracefully stopping...")
			default:
				log.Printf("Server stopped: %v", err)
				stop()
			}
		}
	}()

	// ждем отмены контекста для запуска грейсфул закрытия
	<-ctx.Done()

	shutdown(srv, svc, pub)
	log.Println("Exiting app...")
}

func startEventSink(ctx context.Context, cfg config.KafkaConfig, svc ImageAPIService) *wbfkafka.Producer {
	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, cfg.Broker, 5*time.Second); err != nil {
		log.Printf("Kafka events disabled: %v", err)
		return nil
	}
	if err := kafka.InitKafkaTopics(ctx, cfg.Broker, 10*time.Second, cfg.Topic); err != nil {
		log.Printf("Kafka events disabled: %v", err)
		return nil
	}

	pub := wbfkafka.NewProducer([]string{cfg.Broker}, cfg.Topic)
	sink := events.NewSink(pub, 256)
	svc.Subscribe(sink.Handle)
	go sink.Run(ctx)

	log.Printf("Publishing item events to topic %q", cfg.Topic)
	return pub
}

func shutdown(srv *http.Server, svc ImageAPIService, pub *wbfkafka.Producer) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Println("Failed to shutdown HTTP-server correctly:", err)
	}

	// незавершенные батчи и выгрузки
	if err := svc.Shutdown(ctx); err != nil {
		log.Println("Background jobs did not finish in time:", err)
	}

	if pub != nil {
		if err := pub.Close(); err != nil {
			log.Println("Failed to close Kafka-producer:", err)
		}
		log.Println("Kafka-producer connection closed.")
	}
}
