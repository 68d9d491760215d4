package server

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"echonet-emulator/echonet_lite/log"
)

type LogManager struct{}

// NewLogManager はファイルロガーをセットアップし、slog の既定出力をそのファイルに向ける。
// debug が true の場合は Debug レベルまで出力する。
func NewLogManager(logFilename string, debug bool) (*LogManager, error) {
	// ロガーのセットアップ
	logger, err := log.NewLogger(logFilename)
	if err != nil {
		return nil, err
	}
	log.SetLogger(logger)

	// アプリケーション全体の slog 出力をログファイルへ。
	// Rotate 後も *Logger が現在のファイルへ書くため、ハンドラの差し替えは不要。
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logger, &slog.HandlerOptions{Level: level})))

	// ログローテーション用のシグナルハンドリング (SIGHUP)
	rotateSignalCh := make(chan os.Signal, 1)
	signal.Notify(rotateSignalCh, syscall.SIGHUP)
	go func() {
		for {
			<-rotateSignalCh
			fmt.Fprintln(os.Stderr, "SIGHUPを受信しました。ログファイルをローテーションします...")
			logger := log.GetLogger()
			logger.Log("SIGHUPを受信しました。ログファイルをローテーションします...")
			if err := logger.Rotate(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "ログローテーションエラー: %v\n", err)
			}
		}
	}()

	return &LogManager{}, nil
}

func (lm *LogManager) Close() error {
	// ログファイルを閉じる
	log.SetLogger(nil)
	return nil
}
