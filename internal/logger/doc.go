// Package logger wraps zap for the installer.
//
// Every run logs to the console. Real installs also tee plain lines into a
// rotating file under the log directory so a failed rollback can be inspected
// after the terminal is gone. Loggers travel in the context; the package level
// helpers pick them up from there and fall back to a global console logger.
package logger
