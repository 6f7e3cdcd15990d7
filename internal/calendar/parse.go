package calendar

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"tlbot/internal/logger"
)

// ff_calendar CSV 的日期/时间格式。时间列为 UTC。
const (
	csvDateLayout = "01-02-2006"
	csvTimeLayout = "3:04pm"
)

// ParseCSV 按表头读出事件行。坏行跳过并告警，不中断整份日历。
func ParseCSV(r io.Reader) ([]Event, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("calendar: 读取 CSV 表头失败: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"Title", "Country", "Date", "Time", "Impact"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("calendar: CSV 缺少 %s 列", required)
		}
	}

	var events []Event
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warnf("calendar: 第 %d 行解析失败，跳过: %v", line, err)
			continue
		}
		ev, err := parseRow(row, idx)
		if err != nil {
			logger.Warnf("calendar: 第 %d 行内容无效，跳过: %v", line, err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseRow(row []string, idx map[string]int) (Event, error) {
	field := func(name string) string {
		i := idx[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	title := field("Title")
	country := field("Country")
	if title == "" || country == "" {
		return Event{}, fmt.Errorf("缺少标题或货币")
	}

	day, err := time.ParseInLocation(csvDateLayout, field("Date"), time.UTC)
	if err != nil {
		return Event{}, fmt.Errorf("日期 %q 无法解析: %w", field("Date"), err)
	}
	ts := day
	switch raw := field("Time"); raw {
	case "", "All Day", "Tentative":
		// 无具体时刻的事件对齐到当日零点。
	default:
		clock, err := time.Parse(csvTimeLayout, strings.ToLower(raw))
		if err != nil {
			return Event{}, fmt.Errorf("时间 %q 无法解析: %w", raw, err)
		}
		ts = day.Add(time.Duration(clock.Hour())*time.Hour + time.Duration(clock.Minute())*time.Minute)
	}

	impact := Impact(capitalize(field("Impact")))
	return Event{
		Title:    title,
		Currency: strings.ToUpper(country),
		Impact:   impact,
		Time:     ts,
	}, nil
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
