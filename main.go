package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"
	"upscaler/internal/adapters/backend"
	"upscaler/internal/adapters/handler"
	"upscaler/internal/core/domain"
	"upscaler/internal/core/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Info().Msg("starting upscaler...")

	viper.AddConfigPath(".")
	viper.SetConfigType("toml")

	log.Info().Msg("reading config file...")
	err := viper.ReadInConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("could not read config file")
	}

	var logLevel zerolog.Level

	switch viper.GetString("server.log_level") {
	case "info":
		logLevel = zerolog.InfoLevel
	case "debug":
		logLevel = zerolog.DebugLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	remoteTimeout := viper.GetDuration("remote.timeout")
	if remoteTimeout == 0 {
		remoteTimeout = 60 * time.Second
	}

	registry := &service.Registry{}
	registry.Register(backend.NewClassical(viper.GetString("classical.filter")))
	registry.Register(backend.NewOpenCV(viper.GetString("opencv.interpolation")))
	registry.Register(backend.NewONNX(
		viper.GetString("onnx.model_path"),
		viper.GetString("onnx.library_path"),
		viper.GetInt("onnx.model_scale")))
	registry.Register(backend.NewRealESRGANAPI(
		viper.GetString("realesrgan.endpoint"),
		viper.GetString("realesrgan.api_key"),
		remoteTimeout))
	registry.Register(backend.NewWaifu2x(
		viper.GetString("waifu2x.endpoint"),
		viper.GetInt("waifu2x.noise_level"),
		remoteTimeout))
	registry.Register(backend.NewHuggingFace(
		viper.GetString("huggingface.endpoint"),
		viper.GetString("huggingface.api_token"),
		remoteTimeout))

	tierTable := viper.GetStringMapStringSlice("tiers")
	if len(tierTable) == 0 {
		tierTable = service.DefaultTierTable()
	}

	tiers, err := registry.ResolveTiers(tierTable)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid tier configuration")
	}

	pipeline := service.NewPipeline(postProcessConfig())
	tracker := service.NewStatsTracker()

	dispatcher := service.NewUpscaleDispatcher(tiers, pipeline, tracker,
		viper.GetInt("upscale.max_dimension"),
		viper.GetFloat64("upscale.max_scale"))

	diagnostics := service.NewDiagnostics(registry, tracker, tiers.Names())

	maxUpload := viper.GetInt64("server.max_upload_bytes")
	if maxUpload == 0 {
		maxUpload = 32 << 20
	}

	httpHandler := handler.NewHTTP(dispatcher, diagnostics, pipeline.Defaults(), maxUpload)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handler.RequestID(), handler.AccessLog())
	httpHandler.Register(router)

	addr := viper.GetString("server.listen_addr")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

func postProcessConfig() domain.PostProcessConfig {
	cfg := domain.DefaultPostProcessConfig()

	if viper.IsSet("postprocess.denoise") {
		cfg.Denoise = viper.GetBool("postprocess.denoise")
	}
	if viper.IsSet("postprocess.denoise_kernel") {
		cfg.DenoiseKernel = viper.GetInt("postprocess.denoise_kernel")
	}
	if viper.IsSet("postprocess.clahe") {
		cfg.CLAHE = viper.GetBool("postprocess.clahe")
	}
	if viper.IsSet("postprocess.clahe_clip") {
		cfg.CLAHEClip = viper.GetFloat64("postprocess.clahe_clip")
	}
	if viper.IsSet("postprocess.clahe_tiles") {
		cfg.CLAHETiles = viper.GetInt("postprocess.clahe_tiles")
	}
	if viper.IsSet("postprocess.bilateral") {
		cfg.Bilateral = viper.GetBool("postprocess.bilateral")
	}
	if viper.IsSet("postprocess.bilateral_diameter") {
		cfg.BilateralDiameter = viper.GetInt("postprocess.bilateral_diameter")
	}
	if viper.IsSet("postprocess.sigma_color") {
		cfg.SigmaColor = viper.GetFloat64("postprocess.sigma_color")
	}
	if viper.IsSet("postprocess.sigma_space") {
		cfg.SigmaSpace = viper.GetFloat64("postprocess.sigma_space")
	}
	if viper.IsSet("postprocess.sharpen") {
		cfg.Sharpen = viper.GetBool("postprocess.sharpen")
	}
	if viper.IsSet("postprocess.sharpen_factor") {
		cfg.SharpenFactor = viper.GetFloat64("postprocess.sharpen_factor")
	}

	return cfg
}
