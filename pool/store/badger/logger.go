package badger

import (
	"io"
	"io/ioutil"
	"log"
)

var logger *log.Logger

// SetLogger overrides the logger output for this package, including the
// messages of the underlying Badger database.
func SetLogger(w io.Writer) {
	flags := log.Flags()
	prefix := "[badger] "
	logger = log.New(w, prefix, flags)
}

func init() {
	SetLogger(ioutil.Discard)
}

// badgerLogger routes Badger's own logging to the package logger. Debug
// messages are dropped.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Printf("error: "+format, args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Printf("warning: "+format, args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {}
