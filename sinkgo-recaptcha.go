package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jordansinko/sinkgo-recaptcha/pkg/recaptcha"
)

var (
	version            = "N/A"
	defaultProvider    = "v3|enterprise"
	defaultSecret      = "<RECAPTCHA_SECRET>"
	defaultApiKey      = "<API_KEY>"
	defaultProject     = "<PROJECT_ID>"
	defaultSiteKey     = "<SITE_KEY>"
	defaultTransport   = "default"
	defaultConcurrency = 1
)

func main() {

	lj := &lumberjack.Logger{Filename: `./logs/main.log`, MaxSize: 25, Compress: true}
	multiWriter := zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}, lj)

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log := zerolog.New(multiWriter).With().Timestamp().Logger()

	log.Printf("sinkgo-recaptcha %s", version)

	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.AddConfigPath(".")

	viper.SetDefault("provider", defaultProvider)
	viper.SetDefault("secret", defaultSecret)
	viper.SetDefault("apiKey", defaultApiKey)
	viper.SetDefault("project", defaultProject)
	viper.SetDefault("siteKey", defaultSiteKey)
	viper.SetDefault("action", "")
	viper.SetDefault("remoteIp", "")
	viper.SetDefault("transport", defaultTransport)
	viper.SetDefault("concurrency", defaultConcurrency)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			viper.SafeWriteConfig()
		} else {
			log.Panic().Err(err).Send()
		}
	}

	viper.WatchConfig()

	provider := viper.GetString("provider")

	if provider == defaultProvider {
		panic(fmt.Errorf("please set provider in config"))
	}

	if provider != "v3" && provider != "enterprise" {
		panic(fmt.Errorf("unknown provider: %s", provider))
	}

	secret := viper.GetString("secret")

	if provider == "v3" && secret == defaultSecret {
		panic(fmt.Errorf("please set secret in config"))
	}

	apiKey := viper.GetString("apiKey")
	project := viper.GetString("project")
	siteKey := viper.GetString("siteKey")

	if provider == "enterprise" {
		if apiKey == defaultApiKey {
			panic(fmt.Errorf("please set apiKey in config"))
		}
		if project == defaultProject {
			panic(fmt.Errorf("please set project in config"))
		}
		if siteKey == defaultSiteKey {
			panic(fmt.Errorf("please set siteKey in config"))
		}
	}

	action := viper.GetString("action")
	remoteIp := net.ParseIP(viper.GetString("remoteIp"))
	transportName := viper.GetString("transport")

	tm := NewTaskManager()
	tkm := NewTokenManager()
	pm := NewProxyManager()

	if err := tkm.Read("tokens.txt"); err != nil {
		log.Err(err).Send()
		os.Exit(1)
	}

	if tkm.Count() == 0 {
		log.Error().Msg("no tokens in tokens.txt")
		os.Exit(1)
	}

	if _, err := os.Stat("proxies.txt"); err == nil {
		if err := pm.Read("proxies.txt"); err != nil {
			log.Err(err).Send()
			os.Exit(1)
		}
	}

	log.Printf("loaded %d tokens, %d proxies", tkm.Count(), pm.Count())

	buildTransport := func(taskId string, taskLog zerolog.Logger) recaptcha.Transport {

		if transportName != "chrome" {
			return &recaptcha.HTTPTransport{}
		}

		proxyUrl, err := pm.Lease(taskId)

		if err != nil {
			proxyUrl = nil
		}

		t, err := recaptcha.NewChromeTransport(proxyUrl)

		if err != nil {
			taskLog.Err(err).Msg("falling back to default transport")
			return &recaptcha.HTTPTransport{}
		}

		return t

	}

	type Stats struct {
		Attempts int
		Valid    int
		Invalid  int
		Errored  int
	}

	stats := make(chan Stats, 10)
	statsFlushed := make(chan bool)
	go func() {
		totalAttempts := 0
		totalValid := 0
		totalInvalid := 0
		totalErrored := 0

		for stat := range stats {

			totalAttempts = totalAttempts + stat.Attempts
			totalValid = totalValid + stat.Valid
			totalInvalid = totalInvalid + stat.Invalid
			totalErrored = totalErrored + stat.Errored

			log.Debug().Int("attempts", totalAttempts).Int("valid", totalValid).Int("invalid", totalInvalid).Int("errored", totalErrored).Send()
		}

		log.Info().Int("attempts", totalAttempts).Int("valid", totalValid).Int("invalid", totalInvalid).Int("errored", totalErrored).Msg("all tokens processed")

		statsFlushed <- true
	}()

	outputFlushed := make(chan bool)
	output := make(chan string, 10)
	go func() {
		fileName := fmt.Sprintf(`valid-%d.txt`, time.Now().Unix())

		var file *os.File

		defer func() {
			if file != nil {
				file.Close()
			}
		}()

		for line := range output {

			if file == nil {
				var err error
				file, err = os.Create(fileName)

				if err != nil {
					log.Err(err).Msg("unable to create output file")
					continue
				}
			}

			file.WriteString(fmt.Sprintf("%s\r\n", line))
		}

		outputFlushed <- true
	}()

	taskHandler := func(ctx context.Context) {

		id := fmt.Sprintf("%s", ctx.Value(TaskId{}))

		taskLog := log.With().Str("tid", id).Logger()

		taskLog.Print("starting task")

		transport := buildTransport(id, taskLog)

		verifier := &recaptcha.Verifier{Secret: secret, Transport: transport}
		entVerifier := &recaptcha.EnterpriseVerifier{Project: project, APIKey: apiKey, SiteKey: siteKey, Transport: transport}

		for {

			select {
			case <-ctx.Done():
				return
			default:
			}

			item, ok := tkm.Next()

			if !ok {
				return
			}

			tokenLog := taskLog.With().Str("token", item.hash).Logger()

			stats <- Stats{Attempts: 1}

			if provider == "enterprise" {

				assessment, err := entVerifier.VerifyDetailed(ctx, item.token, action)

				if err != nil {

					var mismatch *recaptcha.ActionMismatchError

					if errors.As(err, &mismatch) {
						tokenLog.Warn().Str("expected", mismatch.Expected).Str("actual", mismatch.Actual).Msg("action mismatch")
						stats <- Stats{Invalid: 1}
						continue
					}

					tokenLog.Err(err).Send()
					stats <- Stats{Errored: 1}
					continue
				}

				resultLog := tokenLog.With().Float64("score", assessment.RiskAnalysis.Score).Str("action", assessment.TokenProperties.Action).Logger()

				if assessment.TokenProperties.Valid {
					resultLog.Info().Msg("token valid")
					output <- item.token
					stats <- Stats{Valid: 1}
				} else {
					resultLog.Warn().Str("reason", assessment.TokenProperties.InvalidReason).Msg("token invalid")
					stats <- Stats{Invalid: 1}
				}

				continue
			}

			response, err := verifier.VerifyV3(ctx, item.token, remoteIp)

			if err != nil {
				tokenLog.Err(err).Send()
				stats <- Stats{Errored: 1}
				continue
			}

			resultLog := tokenLog.With().Float64("score", response.Score).Str("action", response.Action).Logger()

			if response.Success {
				resultLog.Info().Str("hostname", response.Hostname).Msg("token valid")
				output <- item.token
				stats <- Stats{Valid: 1}
			} else {
				resultLog.Warn().Interface("codes", response.ErrorCodes).Msg("token invalid")
				stats <- Stats{Invalid: 1}
			}

		}

	}

	concurrency := viper.GetInt("concurrency")

	for i := 0; i < concurrency; i++ {
		tm.AddTask(taskHandler)
	}

	tm.StartTasks()
	tm.Wait()

	close(stats)
	close(output)

	<-statsFlushed
	<-outputFlushed

	log.Print("all tasks done")

}
