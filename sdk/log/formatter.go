package hopslog

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/mgutz/ansi"
	"github.com/rockbears/log"
	"github.com/sirupsen/logrus"
)

// HopsFormatter prints colored text logs. When Fields is not empty, only these fields
// (and the stack trace) are printed.
type HopsFormatter struct {
	Fields []string
}

// Format format a log
func (f *HopsFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var keys = make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "prefix" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	b := &bytes.Buffer{}
	prefixFieldClashes(entry.Data)
	f.printColored(b, entry, keys)

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *HopsFormatter) printField(k string) bool {
	if len(f.Fields) == 0 || k == string(log.FieldStackTrace) {
		return true
	}
	for _, field := range f.Fields {
		if field == k {
			return true
		}
	}
	return false
}

func (f *HopsFormatter) printColored(b *bytes.Buffer, entry *logrus.Entry, keys []string) {
	var levelColor string
	switch entry.Level {
	case logrus.InfoLevel:
		levelColor = ansi.Green
	case logrus.WarnLevel:
		levelColor = ansi.Yellow
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		levelColor = ansi.Red
	default:
		levelColor = ansi.Blue
	}

	levelText := strings.ToUpper(entry.Level.String())
	if entry.Level == logrus.WarnLevel {
		levelText = "WARN"
	}
	levelText = "[" + levelText + "]"

	fmt.Fprintf(b, "%s %s%+5s%s %s", entry.Time.Format("2006-01-02 15:04:05"), levelColor, levelText, ansi.Reset, entry.Message)

	for _, k := range keys {
		if f.printField(k) {
			fmt.Fprintf(b, " %s%s%s=%+v", levelColor, k, ansi.Reset, entry.Data[k])
		}
	}
}

func prefixFieldClashes(data logrus.Fields) {
	if _, ok := data["time"]; ok {
		data["fields.time"] = data["time"]
	}
	if _, ok := data["msg"]; ok {
		data["fields.msg"] = data["msg"]
	}
	if _, ok := data["level"]; ok {
		data["fields.level"] = data["level"]
	}
}
