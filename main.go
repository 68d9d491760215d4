package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"echonet-emulator/config"
	"echonet-emulator/echonet_lite"
	"echonet-emulator/echonet_lite/device"
	"echonet-emulator/echonet_lite/network"
	"echonet-emulator/echonet_lite/schema"
	"echonet-emulator/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	// コマンドライン引数と設定ファイルの読み込み
	args := config.ParseCommandLineArgs()
	cfg, err := config.LoadConfig(args.ConfigFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "設定ファイルの読み込みエラー: %v\n", err)
		return 1
	}
	cfg.ApplyCommandLineArgs(args)

	// ロガーのセットアップ (slog の出力先 + SIGHUPでローテーション)
	logManager, err := server.NewLogManager(cfg.Log.Filename, cfg.Debug)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "ログ設定エラー: %v\n", err)
		return 1
	}
	defer func() { _ = logManager.Close() }()

	// スキーマ文書の読み込み。metaData.release がない文書は受け付けない。
	store, err := schema.LoadFile(cfg.Schema.File)
	if err != nil {
		if errors.Is(err, schema.ErrMissingMetaData) {
			_, _ = fmt.Fprintf(os.Stderr, "スキーマ文書 %s に metaData.release がありません\n", cfg.Schema.File)
		} else {
			_, _ = fmt.Fprintf(os.Stderr, "スキーマ読み込みエラー: %v\n", err)
		}
		return 1
	}
	slog.Info("スキーマ文書を読み込みました",
		"file", cfg.Schema.File,
		"standardRelease", store.StandardRelease(),
		"classes", len(store.DeviceList()))

	// エミュレートする機器クラスの解決
	descriptor, ok := store.Resolve(cfg.Device.ClassCode, nil, cfg.Device.Release)
	if !ok {
		_, _ = fmt.Fprintf(os.Stderr, "クラスコード %s はスキーマ文書にありません\n", cfg.Device.ClassCode)
		return 1
	}
	dev, err := device.New(descriptor, echonet_lite.EOJInstanceCode(cfg.Device.Instance))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "機器の作成エラー: %v\n", err)
		return 1
	}
	slog.Info("機器をエミュレートします",
		"eoj", dev.EOJ().Specifier(),
		"className", dev.ClassName(),
		"release", dev.Release())

	// ルートコンテキストの作成
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリングの設定 (SIGINT, SIGTERM)
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	// ECHONET Lite 用のUDPソケットと送信キュー
	conn, err := network.CreateUDPConnection(ctx, nil, echonet_lite.ECHONETLitePort,
		echonet_lite.ECHONETLiteMulticastIPv4, cfg.Network.Interfaces)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "UDP接続エラー: %v\n", err)
		return 1
	}
	defer func() { _ = conn.Close() }()
	queue := network.NewTransmissionQueue(conn)
	go receiveLoop(ctx, conn)

	// ダッシュボードサーバーの作成
	addr := fmt.Sprintf("%s:%d", cfg.HTTPServer.Host, cfg.HTTPServer.Port)
	srv, err := server.NewServer(ctx, addr, store, dev, queue)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "サーバー作成エラー: %v\n", err)
		return 1
	}
	if transport, ok := srv.Transport().(*server.DefaultWebSocketTransport); ok && cfg.HTTPServer.WebRoot != "" {
		if err := transport.SetupStaticFileServer(cfg.HTTPServer.WebRoot); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "静的ファイル配信の設定エラー: %v\n", err)
			return 1
		}
	}

	go func() {
		<-signalCh
		fmt.Println("\nシグナルを受信しました。終了します...")
		cancel()
		_ = srv.Stop()
	}()

	// サーバーの起動
	options := server.StartOptions{}
	if cfg.TLS.Enabled {
		options.CertFile = cfg.TLS.CertFile
		options.KeyFile = cfg.TLS.KeyFile
	}
	fmt.Printf("ダッシュボードサーバーを起動しています: %s\n", addr)
	if err := srv.Start(options); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_, _ = fmt.Fprintf(os.Stderr, "サーバーエラー: %v\n", err)
		return 1
	}
	return 0
}

// receiveLoop は3610番ポートに届くパケットを読み続ける。
// 自送信パケットは UDPConnection 側で除外済み（data が nil で返る）。
// 受信したフレームはログに記録するのみで、ESVの解釈は行わない。
func receiveLoop(ctx context.Context, conn *network.UDPConnection) {
	for {
		data, addr, err := conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("UDP受信エラー", "err", err)
			return
		}
		if data == nil {
			continue
		}
		slog.Debug("ECHONET Liteパケットを受信", "from", addr.String(), "bytes", len(data))
	}
}
