package hopslog

import (
	"context"
	"io"
	"log/syslog"
	"strings"

	"github.com/pkg/errors"
	"github.com/rockbears/log"
	"github.com/sirupsen/logrus"
	lSyslog "github.com/sirupsen/logrus/hooks/syslog"
)

// Conf contains log configuration
type Conf struct {
	Level          string
	Format         string
	TextFields     []string
	SkipTextFields []string
	SyslogHost     string
	SyslogPort     string
	SyslogProtocol string
	SyslogExtraTag string
}

const HeaderRequestID = "Request-ID"

// Initialize init log level
func Initialize(ctx context.Context, conf *Conf) {
	switch conf.Level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "warning":
		logrus.SetLevel(logrus.WarnLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	switch conf.Format {
	case "discard":
		logrus.SetOutput(io.Discard)
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		for _, v := range conf.SkipTextFields {
			t := strings.SplitN(v, "=", 2)
			if len(t) != 2 {
				continue
			}
			log.Skip(log.Field(t[0]), t[1])
		}
		logrus.SetFormatter(&HopsFormatter{Fields: conf.TextFields})
	}

	if conf.SyslogHost != "" && conf.SyslogPort != "" {
		if err := initSyslogHook(ctx, conf); err != nil {
			logrus.Error(err)
		}
	}
}

func initSyslogHook(ctx context.Context, conf *Conf) error {
	addr := conf.SyslogHost + ":" + conf.SyslogPort
	hook, err := lSyslog.NewSyslogHook(conf.SyslogProtocol, addr, syslog.LOG_INFO, conf.SyslogExtraTag)
	if err != nil {
		return errors.Wrapf(err, "unable to init syslog hook on %s", addr)
	}
	logrus.AddHook(hook)
	log.Info(ctx, "syslog hook initialized on %s", addr)
	return nil
}
