// Package logger обеспечивает единый вывод логов synced с префиксом и учётом quiet/verbose.
package logger

import "log"

// Quiet при true отключает информационные сообщения (Info, Warn, Debug); Error выводится всегда.
var Quiet bool

// Verbose включает отладочный вывод (Debug): переходы автоматов, изменения subjects.
var Verbose bool

const prefix = "synced: "

// Info выводит сообщение с префиксом "synced: ", если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+format, args...)
}

// Warn: сбои оборудования и прочие не фатальные ошибки цикла управления.
func Warn(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+"warning: "+format, args...)
}

// Debug выводится только при Verbose и не Quiet.
func Debug(format string, args ...interface{}) {
	if Quiet || !Verbose {
		return
	}
	log.Printf(prefix+"debug: "+format, args...)
}

// Error выводит сообщение об ошибке с префиксом "synced: " всегда.
func Error(format string, args ...interface{}) {
	log.Printf(prefix+format, args...)
}
