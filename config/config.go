package config

import (
	"flag"
	"os"

	"github.com/BurntSushi/toml"
)

// indexOf は文字列内の特定の文字の位置を返す
func indexOf(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

const (
	// DefaultConfigFile はデフォルトの設定ファイル名
	DefaultConfigFile = "config.toml"
)

// Config はアプリケーション全体の設定を表す
type Config struct {
	Debug bool `toml:"debug"`
	Log   struct {
		Filename string `toml:"filename"`
	} `toml:"log"`
	Schema struct {
		File string `toml:"file"`
	} `toml:"schema"`
	Device struct {
		ClassCode string `toml:"class_code"`
		Instance  int    `toml:"instance"`
		Release   string `toml:"release"` // 空なら標準リリース
	} `toml:"device"`
	Network struct {
		// マルチキャスト加入対象のインターフェース名。空なら全候補。
		Interfaces []string `toml:"interfaces"`
	} `toml:"network"`
	TLS struct {
		Enabled  bool   `toml:"enabled"`
		CertFile string `toml:"cert_file"`
		KeyFile  string `toml:"key_file"`
	} `toml:"tls"`
	HTTPServer struct {
		Host    string `toml:"host"`
		Port    int    `toml:"port"`
		WebRoot string `toml:"web_root"`
	} `toml:"http_server"`
}

// NewConfig はデフォルト設定を持つConfigを作成する
func NewConfig() *Config {
	cfg := &Config{
		Debug: false,
	}
	cfg.Log.Filename = "echonet-emulator.log"
	cfg.Schema.File = "data/devices.json"
	cfg.Device.ClassCode = "0130"
	cfg.Device.Instance = 1
	cfg.HTTPServer.Host = "localhost"
	cfg.HTTPServer.Port = 8080
	cfg.HTTPServer.WebRoot = ""
	return cfg
}

// LoadConfig は設定を読み込む
// 以下の優先順位でロードする:
// 1. 指定されたパスの設定ファイル（指定がある場合）
// 2. カレントディレクトリのデフォルト設定ファイル（存在する場合）
// 3. デフォルト設定
func LoadConfig(configPath string) (*Config, error) {
	config := NewConfig()

	// 設定ファイルパスの解決
	filePath := configPath
	if filePath == "" {
		// 指定がなければデフォルトファイルを探す
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			filePath = DefaultConfigFile
		} else {
			// デフォルトファイルもなければ、デフォルト設定をそのまま返す
			return config, nil
		}
	}

	// 設定ファイルが指定または存在する場合は読み込む
	if _, err := toml.DecodeFile(filePath, config); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyCommandLineArgs はコマンドライン引数で指定された値を設定に適用する
func (c *Config) ApplyCommandLineArgs(args CommandLineArgs) {
	// コマンドライン引数で指定された値で上書き
	if args.DebugSpecified {
		c.Debug = args.Debug
	}
	if args.LogFilenameSpecified {
		c.Log.Filename = args.LogFilename
	}
	if args.SchemaFileSpecified {
		c.Schema.File = args.SchemaFile
	}
	if args.DeviceClassCodeSpecified {
		c.Device.ClassCode = args.DeviceClassCode
	}
	if args.DeviceInstanceSpecified {
		c.Device.Instance = args.DeviceInstance
	}
	if args.DeviceReleaseSpecified {
		c.Device.Release = args.DeviceRelease
	}
	// TLS
	if args.TLSEnabledSpecified {
		c.TLS.Enabled = args.TLSEnabled
	}
	if args.TLSCertFileSpecified {
		c.TLS.CertFile = args.TLSCertFile
	}
	if args.TLSKeyFileSpecified {
		c.TLS.KeyFile = args.TLSKeyFile
	}
	// HTTPサーバー
	if args.HTTPServerHostSpecified {
		c.HTTPServer.Host = args.HTTPServerHost
	}
	if args.HTTPServerPortSpecified {
		c.HTTPServer.Port = args.HTTPServerPort
	}
	if args.HTTPServerWebRootSpecified {
		c.HTTPServer.WebRoot = args.HTTPServerWebRoot
	}
}

// CommandLineArgs はコマンドライン引数からの値を保持する
type CommandLineArgs struct {
	// 設定ファイル (メタ設定)
	ConfigFile      string
	ConfigSpecified bool

	// 一般設定
	Debug          bool
	DebugSpecified bool

	// ログ設定
	LogFilename          string
	LogFilenameSpecified bool

	// スキーマ設定
	SchemaFile          string
	SchemaFileSpecified bool

	// エミュレート対象の機器設定
	DeviceClassCode          string
	DeviceClassCodeSpecified bool
	DeviceInstance           int
	DeviceInstanceSpecified  bool
	DeviceRelease            string
	DeviceReleaseSpecified   bool

	// TLS設定
	TLSEnabled           bool
	TLSEnabledSpecified  bool
	TLSCertFile          string
	TLSCertFileSpecified bool
	TLSKeyFile           string
	TLSKeyFileSpecified  bool

	// HTTPサーバー設定
	HTTPServerHost             string
	HTTPServerHostSpecified    bool
	HTTPServerPort             int
	HTTPServerPortSpecified    bool
	HTTPServerWebRoot          string
	HTTPServerWebRootSpecified bool
}

// ParseCommandLineArgs はコマンドライン引数をパースする
func ParseCommandLineArgs() CommandLineArgs {
	var args CommandLineArgs

	// フラグの定義
	configFileFlag := flag.String("config", "", "TOML設定ファイルのパスを指定する")

	debugFlag := flag.Bool("debug", false, "デバッグモードを有効にする")
	logFilenameFlag := flag.String("log", "echonet-emulator.log", "ログファイル名を指定する")

	schemaFileFlag := flag.String("schema", "data/devices.json", "機器スキーマ文書のパスを指定する")

	classCodeFlag := flag.String("class", "0130", "エミュレートする機器クラスコードを指定する")
	instanceFlag := flag.Int("instance", 1, "エミュレートする機器のインスタンスコードを指定する")
	releaseFlag := flag.String("release", "", "スキーマ解決に使うリリースを指定する（空なら標準リリース）")

	tlsFlag := flag.Bool("tls", false, "サーバーでTLSを有効にする")
	certFileFlag := flag.String("cert-file", "", "TLS証明書ファイルのパスを指定する")
	keyFileFlag := flag.String("key-file", "", "TLS秘密鍵ファイルのパスを指定する")

	httpHostFlag := flag.String("http-host", "localhost", "HTTPサーバーのホスト名を指定する")
	httpPortFlag := flag.Int("http-port", 8080, "HTTPサーバーのポートを指定する")
	httpWebRootFlag := flag.String("http-webroot", "", "HTTPサーバーのWebルートディレクトリを指定する")

	// コマンドライン引数を解析
	flag.Parse()

	// コマンドライン引数を直接解析して、フラグが指定されたかどうかを確認
	argsMap := make(map[string]bool)
	for i := 1; i < len(os.Args); i++ {
		arg := os.Args[i]
		if len(arg) > 0 && arg[0] == '-' {
			// フラグ名を抽出 (-flag または --flag の形式)
			flagName := arg
			if len(flagName) > 1 && flagName[1] == '-' {
				flagName = flagName[2:] // --flag の場合
			} else {
				flagName = flagName[1:] // -flag の場合
			}

			// = が含まれている場合は分割
			if idx := indexOf(flagName, '='); idx >= 0 {
				flagName = flagName[:idx]
			}

			argsMap[flagName] = true

			// 次の引数が値の場合はスキップ
			if i+1 < len(os.Args) && len(os.Args[i+1]) > 0 && os.Args[i+1][0] != '-' {
				i++
			}
		}
	}

	// 値と指定有無の設定
	args.ConfigFile = *configFileFlag
	args.ConfigSpecified = argsMap["config"]

	args.Debug = *debugFlag
	args.DebugSpecified = argsMap["debug"]

	args.LogFilename = *logFilenameFlag
	args.LogFilenameSpecified = argsMap["log"]

	args.SchemaFile = *schemaFileFlag
	args.SchemaFileSpecified = argsMap["schema"]

	args.DeviceClassCode = *classCodeFlag
	args.DeviceClassCodeSpecified = argsMap["class"]

	args.DeviceInstance = *instanceFlag
	args.DeviceInstanceSpecified = argsMap["instance"]

	args.DeviceRelease = *releaseFlag
	args.DeviceReleaseSpecified = argsMap["release"]

	args.TLSEnabled = *tlsFlag
	args.TLSEnabledSpecified = argsMap["tls"]

	args.TLSCertFile = *certFileFlag
	args.TLSCertFileSpecified = argsMap["cert-file"]

	args.TLSKeyFile = *keyFileFlag
	args.TLSKeyFileSpecified = argsMap["key-file"]

	args.HTTPServerHost = *httpHostFlag
	args.HTTPServerHostSpecified = argsMap["http-host"]
	args.HTTPServerPort = *httpPortFlag
	args.HTTPServerPortSpecified = argsMap["http-port"]
	args.HTTPServerWebRoot = *httpWebRootFlag
	args.HTTPServerWebRootSpecified = argsMap["http-webroot"]

	return args
}
