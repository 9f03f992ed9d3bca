package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/spread"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// DefaultPrecision is the number of decimals kept in reports.
const DefaultPrecision int32 = 8

// ReportMeta describes the run a Result came from.
type ReportMeta struct {
	Pair         string
	Spread       *spread.Options
	ZScoreWindow int
	Long         *signal.Document
	Short        *signal.Document
	Timestamps   []string
	// Precision is the number of decimals kept; 0 means DefaultPrecision.
	Precision int32
	// MaxGrossExposure is the largest |long| + |short| of the run.
	MaxGrossExposure float64
	Warnings         []string
}

// StepRecord is one row of the per-step series.
type StepRecord struct {
	Step       int     `yaml:"step" json:"step"`
	Time       string  `yaml:"time,omitempty" json:"time,omitempty"`
	Position   float64 `yaml:"position" json:"position"`
	Gross      float64 `yaml:"gross" json:"gross"`
	Cost       float64 `yaml:"cost" json:"cost"`
	Return     float64 `yaml:"return" json:"return"`
	Cumulative float64 `yaml:"cumulative" json:"cumulative"`
	Equity     float64 `yaml:"equity" json:"equity"`
	Drawdown   float64 `yaml:"drawdown" json:"drawdown"`
}

// Report is the serialisable outcome of one backtest.
type Report struct {
	RunID        string           `yaml:"run_id" json:"run_id"`
	GeneratedAt  time.Time        `yaml:"generated_at" json:"generated_at"`
	Pair         string           `yaml:"pair,omitempty" json:"pair,omitempty"`
	Config       SimulationConfig `yaml:"config" json:"config"`
	Spread       *spread.Options  `yaml:"spread,omitempty" json:"spread,omitempty"`
	ZScoreWindow int              `yaml:"zscore_window,omitempty" json:"zscore_window,omitempty"`
	Long         *signal.Document `yaml:"long,omitempty" json:"long,omitempty"`
	Short        *signal.Document `yaml:"short,omitempty" json:"short,omitempty"`
	Summary      Summary          `yaml:"summary" json:"summary"`
	// MaxGrossExposure exceeds Summary.MaxAbsPosition when the directions overlapped.
	MaxGrossExposure float64      `yaml:"max_gross_exposure,omitempty" json:"max_gross_exposure,omitempty"`
	Trades           []Trade      `yaml:"trades" json:"trades"`
	Series           []StepRecord `yaml:"series" json:"series"`
	Warnings         []string     `yaml:"warnings,omitempty" json:"warnings,omitempty"`
}

// NewReport rounds res to the requested precision and attaches meta.
func NewReport(res *Result, meta ReportMeta) (*Report, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: nil result", stats.ErrParameter)
	}
	if meta.Timestamps != nil && len(meta.Timestamps) != len(res.Positions) {
		return nil, fmt.Errorf("%w: %d timestamps for %d steps",
			stats.ErrLengthMismatch, len(meta.Timestamps), len(res.Positions))
	}
	places := meta.Precision
	if places <= 0 {
		places = DefaultPrecision
	}

	r := &Report{
		RunID:        uuid.New().String(),
		GeneratedAt:  time.Now().UTC(),
		Pair:         meta.Pair,
		Config:       res.Config,
		Spread:       meta.Spread,
		ZScoreWindow: meta.ZScoreWindow,
		Long:         meta.Long.Clone(),
		Short:        meta.Short.Clone(),
		Warnings:     append([]string(nil), meta.Warnings...),
	}

	rd := rounder{places: places}
	r.Summary = rd.summary(res.Summary)
	r.MaxGrossExposure = rd.v(meta.MaxGrossExposure)

	r.Trades = make([]Trade, len(res.Trades))
	for i, tr := range res.Trades {
		tr.Size = rd.v(tr.Size)
		tr.GrossReturn = rd.v(tr.GrossReturn)
		tr.Cost = rd.v(tr.Cost)
		tr.Return = rd.v(tr.Return)
		r.Trades[i] = tr
	}

	r.Series = make([]StepRecord, len(res.Positions))
	for t := range res.Positions {
		rec := StepRecord{
			Step:       t,
			Position:   rd.v(res.Positions[t]),
			Gross:      rd.v(res.GrossReturns[t]),
			Cost:       rd.v(res.Costs[t]),
			Return:     rd.v(res.StrategyReturns[t]),
			Cumulative: rd.v(res.CumulativeReturns[t]),
			Equity:     rd.v(res.EquityCurve[t]),
			Drawdown:   rd.v(res.Drawdowns[t]),
		}
		if meta.Timestamps != nil {
			rec.Time = meta.Timestamps[t]
		}
		r.Series[t] = rec
	}

	if rd.nonFinite > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d non-finite values reported as 0", rd.nonFinite))
	}
	return r, nil
}

// rounder rounds values for output; non-finite values become 0 so every
// encoder can represent them.
type rounder struct {
	places    int32
	nonFinite int
}

func (r *rounder) v(x float64) float64 {
	if !stats.IsFinite(x) {
		r.nonFinite++
		return 0
	}
	return stats.Round(x, r.places)
}

func (r *rounder) summary(s Summary) Summary {
	s.TotalLogReturn = r.v(s.TotalLogReturn)
	s.TotalReturn = r.v(s.TotalReturn)
	s.Turnover = r.v(s.Turnover)
	s.TotalCost = r.v(s.TotalCost)
	s.MeanReturn = r.v(s.MeanReturn)
	s.Volatility = r.v(s.Volatility)
	s.AnnualizedVol = r.v(s.AnnualizedVol)
	s.SharpeRatio = r.v(s.SharpeRatio)
	s.SortinoRatio = r.v(s.SortinoRatio)
	s.AnnualizedReturn = r.v(s.AnnualizedReturn)
	s.MaxDrawdown = r.v(s.MaxDrawdown)
	s.CalmarRatio = r.v(s.CalmarRatio)
	s.MaxAbsPosition = r.v(s.MaxAbsPosition)
	s.ExposureRatio = r.v(s.ExposureRatio)
	s.Trades.WinRate = r.v(s.Trades.WinRate)
	s.Trades.AvgWin = r.v(s.Trades.AvgWin)
	s.Trades.AvgLoss = r.v(s.Trades.AvgLoss)
	s.Trades.ProfitFactor = r.v(s.Trades.ProfitFactor)
	s.Trades.BestTrade = r.v(s.Trades.BestTrade)
	s.Trades.WorstTrade = r.v(s.Trades.WorstTrade)
	s.Trades.AvgHoldingSteps = r.v(s.Trades.AvgHoldingSteps)
	return s
}

// YAML encodes the report as YAML.
func (r *Report) YAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// JSON encodes the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return data, nil
}

// WriteMarkdown writes a human-readable report.
func (r *Report) WriteMarkdown(w io.Writer) error {
	ew := &errWriter{w: w}
	s := r.Summary

	ew.printf("# 回测报告\n\n")
	if r.Pair != "" {
		ew.printf("**配对**: %s\n", r.Pair)
	}
	ew.printf("**运行ID**: %s\n", r.RunID)
	ew.printf("**样本长度**: %d\n\n", s.Steps)
	ew.printf("---\n\n")

	ew.printf("## 绩效摘要\n\n")
	ew.printf("| 指标 | 数值 |\n")
	ew.printf("|------|------|\n")
	ew.printf("| **总收益率** | %.2f%% |\n", s.TotalReturn*100)
	ew.printf("| **累计对数收益** | %.6f |\n", s.TotalLogReturn)
	ew.printf("| **年化收益率** | %.2f%% |\n", s.AnnualizedReturn*100)
	ew.printf("| **年化波动率** | %.2f%% |\n", s.AnnualizedVol*100)
	ew.printf("| **Sharpe Ratio** | %.2f |\n", s.SharpeRatio)
	ew.printf("| **Sortino Ratio** | %.2f |\n", s.SortinoRatio)
	ew.printf("| **最大回撤** | %.2f%% |\n", s.MaxDrawdown*100)
	ew.printf("| **Calmar Ratio** | %.2f |\n", s.CalmarRatio)
	ew.printf("| **仓位变动次数** | %d |\n", s.PositionChanges)
	ew.printf("| **换手** | %.2f |\n", s.Turnover)
	ew.printf("| **总交易成本** | %.6f |\n", s.TotalCost)
	ew.printf("| **持仓时间占比** | %.2f%% |\n", s.ExposureRatio*100)
	ew.printf("| **最大净仓位** | %.2f |\n", s.MaxAbsPosition)
	if r.MaxGrossExposure > 0 {
		ew.printf("| **最大总敞口** | %.2f |\n", r.MaxGrossExposure)
	}
	ew.printf("\n")

	ew.printf("## 交易统计\n\n")
	ew.printf("| 指标 | 数值 |\n")
	ew.printf("|------|------|\n")
	ew.printf("| **开仓次数** | %d |\n", s.Trades.Opened)
	ew.printf("| **平仓次数** | %d |\n", s.Trades.Closed)
	ew.printf("| **盈利交易** | %d |\n", s.Trades.Winning)
	ew.printf("| **亏损交易** | %d |\n", s.Trades.Losing)
	ew.printf("| **胜率** | %.2f%% |\n", s.Trades.WinRate*100)
	ew.printf("| **平均盈利** | %.4f |\n", s.Trades.AvgWin)
	ew.printf("| **平均亏损** | %.4f |\n", s.Trades.AvgLoss)
	ew.printf("| **最大单笔盈利** | %.4f |\n", s.Trades.BestTrade)
	ew.printf("| **最大单笔亏损** | %.4f |\n", s.Trades.WorstTrade)
	ew.printf("| **平均持仓步数** | %.1f |\n\n", s.Trades.AvgHoldingSteps)

	if len(r.Trades) > 0 {
		ew.printf("## 交易明细（前10笔）\n\n")
		ew.printf("| 方向 | 开仓 | 平仓 | 仓位 | 收益 | 成本 |\n")
		ew.printf("|------|------|------|------|------|------|\n")

		limit := 10
		if len(r.Trades) < limit {
			limit = len(r.Trades)
		}
		for _, tr := range r.Trades[:limit] {
			exit := strconv.Itoa(tr.ExitStep)
			if tr.Open {
				exit = "持仓中"
			}
			ew.printf("| %s | %d | %s | %.2f | %.4f | %.4f |\n",
				tr.Direction, tr.EntryStep, exit, tr.Size, tr.Return, tr.Cost)
		}
		ew.printf("\n")
		if len(r.Trades) > limit {
			ew.printf("*...共 %d 笔，仅显示前 %d 笔*\n\n", len(r.Trades), limit)
		}
	}

	ew.printf("## 风险分析\n\n")
	ew.printf("- **Sharpe Ratio**: %.2f %s\n", s.SharpeRatio, evaluateSharpe(s.SharpeRatio))
	ew.printf("- **Sortino Ratio**: %.2f %s\n", s.SortinoRatio, evaluateSortino(s.SortinoRatio))
	ew.printf("- **最大回撤**: %.2f%% %s\n", s.MaxDrawdown*100, evaluateDrawdown(s.MaxDrawdown))
	ew.printf("- **盈利因子**: %.2f %s\n\n", s.Trades.ProfitFactor, evaluateProfitFactor(s.Trades.ProfitFactor))

	ew.printf("## 配置信息\n\n")
	ew.printf("- **交易成本率**: %.4f%%\n", r.Config.CostRate*100)
	if r.Config.Weight1 != nil {
		ew.printf("- **资产1权重**: %.2f\n", *r.Config.Weight1)
	}
	if r.Config.Weight2 != nil {
		ew.printf("- **资产2权重**: %.2f\n", *r.Config.Weight2)
	}
	if r.Spread != nil {
		ew.printf("- **Spread 类型**: %s\n", r.Spread.Type)
	}
	if r.ZScoreWindow > 0 {
		ew.printf("- **Z-Score 窗口**: %d\n", r.ZScoreWindow)
	}
	for _, doc := range []*signal.Document{r.Long, r.Short} {
		if doc == nil {
			continue
		}
		if spec, err := doc.Spec(); err == nil {
			ew.printf("- **%s 条件**: %s\n", doc.SignalType, spec)
		}
	}
	ew.printf("\n")

	if len(r.Warnings) > 0 {
		ew.printf("## 警告\n\n")
		for _, warn := range r.Warnings {
			ew.printf("- %s\n", warn)
		}
		ew.printf("\n")
	}

	ew.printf("---\n\n")
	ew.printf("**报告生成时间**: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	return ew.err
}

// WriteSeriesCSV writes the per-step series.
func (r *Report) WriteSeriesCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	header := []string{"Step", "Time", "Position", "Gross", "Cost", "Return", "Cumulative", "Equity", "Drawdown"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, rec := range r.Series {
		row := []string{
			strconv.Itoa(rec.Step),
			rec.Time,
			formatFloat(rec.Position),
			formatFloat(rec.Gross),
			formatFloat(rec.Cost),
			formatFloat(rec.Return),
			formatFloat(rec.Cumulative),
			formatFloat(rec.Equity),
			formatFloat(rec.Drawdown),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTradesCSV writes one row per trade.
func (r *Report) WriteTradesCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Direction", "EntryStep", "ExitStep", "Size", "Gross", "Cost", "Return", "Open"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, tr := range r.Trades {
		row := []string{
			string(tr.Direction),
			strconv.Itoa(tr.EntryStep),
			strconv.Itoa(tr.ExitStep),
			formatFloat(tr.Size),
			formatFloat(tr.GrossReturn),
			formatFloat(tr.Cost),
			formatFloat(tr.Return),
			strconv.FormatBool(tr.Open),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// Report formats understood by ReportGenerator.
const (
	FormatYAML     = "yaml"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
)

// ReportGenerator writes reports to an output directory.
type ReportGenerator struct {
	outputDir string
	formats   []string
	log       *logrus.Entry
}

// NewReportGenerator creates a generator; no formats means YAML only.
func NewReportGenerator(outputDir string, formats []string, logger *logrus.Logger) *ReportGenerator {
	if len(formats) == 0 {
		formats = []string{FormatYAML}
	}
	return &ReportGenerator{
		outputDir: outputDir,
		formats:   formats,
		log:       logging.WithComponent(logger, "Report"),
	}
}

// Generate writes r in every configured format and returns the file paths.
func (g *ReportGenerator) Generate(r *Report) ([]string, error) {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	base := "backtest_" + time.Now().Format("20060102_150405")
	if r.Pair != "" {
		base = fmt.Sprintf("backtest_%s_%s", sanitizeName(r.Pair), time.Now().Format("20060102_150405"))
	}
	base += "_" + shortID(r.RunID)

	var paths []string
	for _, format := range g.formats {
		switch strings.ToLower(format) {
		case FormatYAML, "yml":
			data, err := r.YAML()
			if err != nil {
				return paths, err
			}
			p, err := g.writeFile(base+".yaml", data)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
		case FormatJSON:
			data, err := r.JSON()
			if err != nil {
				return paths, err
			}
			p, err := g.writeFile(base+".json", data)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
		case FormatMarkdown, "md":
			p, err := g.writeWith(base+".md", r.WriteMarkdown)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
		case FormatCSV:
			p, err := g.writeWith(base+"_series.csv", r.WriteSeriesCSV)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
			p, err = g.writeWith(base+"_trades.csv", r.WriteTradesCSV)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
		default:
			return paths, fmt.Errorf("%w: unknown report format %q", stats.ErrParameter, format)
		}
	}
	return paths, nil
}

func (g *ReportGenerator) writeFile(name string, data []byte) (string, error) {
	filename := filepath.Join(g.outputDir, name)
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	g.log.Infof("Report saved: %s", filename)
	return filename, nil
}

func (g *ReportGenerator) writeWith(name string, write func(io.Writer) error) (string, error) {
	filename := filepath.Join(g.outputDir, name)
	file, err := os.Create(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := write(file); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	g.log.Infof("Report saved: %s", filename)
	return filename, nil
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Helper functions for evaluation

func evaluateSharpe(sharpe float64) string {
	if sharpe > 2.0 {
		return "(优秀)"
	} else if sharpe > 1.0 {
		return "(良好)"
	} else if sharpe > 0.5 {
		return "(一般)"
	}
	return "(较差)"
}

func evaluateSortino(sortino float64) string {
	if sortino > 2.0 {
		return "(优秀)"
	} else if sortino > 1.0 {
		return "(良好)"
	} else if sortino > 0.5 {
		return "(一般)"
	}
	return "(较差)"
}

func evaluateDrawdown(dd float64) string {
	if dd < 0.05 {
		return "(优秀)"
	} else if dd < 0.10 {
		return "(良好)"
	} else if dd < 0.20 {
		return "(可接受)"
	}
	return "(风险较高)"
}

func evaluateProfitFactor(pf float64) string {
	if pf > 2.0 {
		return "(优秀)"
	} else if pf > 1.5 {
		return "(良好)"
	} else if pf > 1.0 {
		return "(盈利)"
	}
	return "(亏损)"
}
