// Package visual 把补齐后的 K 线段渲染成数据质量报告：每段一组
// K 线图 + 成交量图，断裂以标题注记，合成 K 线在量图中高亮。
package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"bhds/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorBull          = "#34d399"
	colorBear          = "#f87171"
	colorSynthetic     = "#fbbf24"
	colorEmaFast       = "#3b82f6"
	colorEmaSlow       = "#f472b6"

	chartWidthPx   = 1600
	klineHeightPx  = 600
	volumeHeightPx = 260

	emaFastPeriod = 21
	emaSlowPeriod = 55
)

// ReportInput 描述单 symbol 的渲染输入。Segments 为时间有序的补齐段。
type ReportInput struct {
	Symbol   string
	Interval string
	Segments []market.Segment
	Gaps     []market.Gap
}

// RenderHTML 生成自包含的 HTML 报告。
func RenderHTML(input ReportInput) ([]byte, error) {
	if input.Symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if len(input.Segments) == 0 {
		return nil, fmt.Errorf("%s 没有可渲染的段", input.Symbol)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	for _, seg := range input.Segments {
		if len(seg.Candles) == 0 {
			continue
		}
		kline := buildKlineChart(input, seg)
		volume := buildVolumeChart(seg)
		page.AddCharts(kline, volume)
	}
	if len(page.Charts) == 0 {
		return nil, fmt.Errorf("%s 所有段均为空", input.Symbol)
	}
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderPNG 通过 headless 浏览器把报告截为 PNG。
func RenderPNG(ctx context.Context, input ReportInput) ([]byte, error) {
	html, err := RenderHTML(input)
	if err != nil {
		return nil, err
	}
	blocks := 0
	for _, seg := range input.Segments {
		if len(seg.Candles) > 0 {
			blocks++
		}
	}
	height := blocks * (klineHeightPx + volumeHeightPx)
	if height < 520 {
		height = 520
	}
	return renderHTMLToPNG(ctx, html, chartWidthPx, height)
}

// WriteHTML 渲染报告并写入文件。
func WriteHTML(input ReportInput, path string) error {
	html, err := RenderHTML(input)
	if err != nil {
		return err
	}
	return os.WriteFile(path, html, 0o644)
}

func buildKlineChart(input ReportInput, seg market.Segment) *charts.Kline {
	candles := seg.Candles
	minPrice, maxPrice := priceBounds(candles)
	padding := (maxPrice - minPrice) * 0.05
	if padding <= 0 {
		padding = math.Max(1, math.Abs(maxPrice)*0.01)
	}

	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", klineHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s [%s]", strings.ToUpper(input.Symbol), input.Interval, seg.Name),
			Subtitle:      segmentSubtitle(seg, input.Gaps),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			Min:       round(minPrice-padding, 4),
			Max:       round(maxPrice+padding, 4),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorBull,
			Color0:       colorBear,
			BorderColor:  colorBull,
			BorderColor0: colorBear,
		}),
	)

	xAxis := buildXAxis(candles)
	data := make([]opts.KlineData, 0, len(candles))
	for _, c := range candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	emaLine := buildEMALine(candles)
	emaLine.SetXAxis(xAxis)
	kline.Overlap(emaLine)
	return kline
}

func buildEMALine(candles []market.Candle) *charts.Line {
	line := charts.NewLine()
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	if len(closes) > emaFastPeriod {
		ema := talib.Ema(closes, emaFastPeriod)
		line.AddSeries(fmt.Sprintf("EMA%d", emaFastPeriod), toLineData(ema, emaFastPeriod),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaFast, Width: 2}))
	}
	if len(closes) > emaSlowPeriod {
		ema := talib.Ema(closes, emaSlowPeriod)
		line.AddSeries(fmt.Sprintf("EMA%d", emaSlowPeriod), toLineData(ema, emaSlowPeriod),
			charts.WithLineStyleOpts(opts.LineStyle{Color: colorEmaSlow, Width: 2}))
	}
	return line
}

func buildVolumeChart(seg market.Segment) *charts.Bar {
	candles := seg.Candles
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", volumeHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Volume（黄柱为补洞合成）", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			SplitNumber: 6,
			AxisLabel:   &opts.AxisLabel{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	vols := make([]opts.BarData, len(candles))
	for i, c := range candles {
		color := colorBear
		switch {
		case c.Synthetic():
			// 合成 K 线成交量为零，画一个最小高度的黄柱以便肉眼定位。
			vols[i] = opts.BarData{Value: syntheticMarkerHeight(candles), ItemStyle: &opts.ItemStyle{Color: colorSynthetic}}
			continue
		case c.Close >= c.Open:
			color = colorBull
		}
		vols[i] = opts.BarData{Value: c.Volume, ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.6)}}
	}
	bar.SetXAxis(buildXAxis(candles))
	bar.AddSeries("Volume", vols)
	return bar
}

func segmentSubtitle(seg market.Segment, gaps []market.Gap) string {
	synthetic := 0
	for _, c := range seg.Candles {
		if c.Synthetic() {
			synthetic++
		}
	}
	parts := []string{
		fmt.Sprintf("%s ~ %s", formatTs(seg.Start()), formatTs(seg.End())),
		fmt.Sprintf("%d 根 K 线，%d 根合成", len(seg.Candles), synthetic),
	}
	for _, g := range gaps {
		if g.OpenTime == seg.Start() {
			parts = append(parts, fmt.Sprintf("段前断裂: Δt=%s Δp=%.2f%%",
				time.Duration(g.Duration)*time.Millisecond, g.PriceChange*100))
		}
	}
	return strings.Join(parts, " | ")
}

func syntheticMarkerHeight(candles []market.Candle) float64 {
	maxVol := 0.0
	for _, c := range candles {
		if c.Volume > maxVol {
			maxVol = c.Volume
		}
	}
	if maxVol <= 0 {
		return 1
	}
	return maxVol * 0.05
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = time.UnixMilli(c.OpenTime).UTC().Format("2006-01-02 15:04")
	}
	return x
}

func toLineData(series []float64, warmup int) []opts.LineData {
	line := make([]opts.LineData, len(series))
	for i, v := range series {
		if i < warmup || math.IsNaN(v) {
			line[i] = opts.LineData{Value: nil}
			continue
		}
		line[i] = opts.LineData{Value: round(v, 4)}
	}
	return line
}

func priceBounds(candles []market.Candle) (minVal, maxVal float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	minVal = candles[0].Low
	maxVal = candles[0].High
	for _, c := range candles {
		if c.Low < minVal {
			minVal = c.Low
		}
		if c.High > maxVal {
			maxVal = c.High
		}
	}
	return minVal, maxVal
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func formatTs(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02 15:04")
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
