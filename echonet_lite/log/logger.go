package log

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Logger はファイルに書き出すアプリケーションロガー
type Logger struct {
	logFile    *os.File
	logMutex   sync.Mutex
	fileLogger *log.Logger
}

var (
	logger *Logger
)

func GetLogger() *Logger {
	return logger
}

func SetLogger(l *Logger) {
	if logger != nil {
		logger.Close()
	}
	logger = l
}

// NewLogger は指定されたファイルに書き出すロガーを作成する
func NewLogger(filename string) (*Logger, error) {
	logFile, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ログファイルを開けませんでした: %w", err)
	}

	fileLogger := log.New(logFile, "", log.LstdFlags|log.Lmicroseconds)

	return &Logger{
		logFile:    logFile,
		fileLogger: fileLogger,
	}, nil
}

func (l *Logger) Close() {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile != nil {
		_ = l.logFile.Close()
		l.logFile = nil
	}
}

// Write はログファイルに直接書き出す。slog のハンドラの出力先として使うためのもので、
// Rotate とは排他される。
func (l *Logger) Write(p []byte) (int, error) {
	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	if l.logFile == nil {
		return len(p), nil
	}
	return l.logFile.Write(p)
}

// Log はログファイルにメッセージを書き出す
func (l *Logger) Log(format string, v ...interface{}) {
	if l.fileLogger != nil {
		l.fileLogger.Printf(format, v...)
	}
}

// Rotate はログファイルを閉じて開き直す（SIGHUP用）
func (l *Logger) Rotate() error {
	if l.logFile == nil {
		return nil // No log file to rotate
	}

	currentLogPath := l.logFile.Name()

	l.logMutex.Lock()
	defer l.logMutex.Unlock()

	_ = l.logFile.Close()

	logFile, err := os.OpenFile(currentLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("ログファイルを再オープンできませんでした: %w", err)
	}

	l.fileLogger = log.New(logFile, "", log.LstdFlags|log.Lmicroseconds)
	l.logFile = logFile

	return nil
}
