package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/John-Robertt/CLMC/internal/catalog"
	"github.com/John-Robertt/CLMC/internal/config"
	"github.com/John-Robertt/CLMC/internal/domain"
	"github.com/John-Robertt/CLMC/internal/infra/blob"
	"github.com/John-Robertt/CLMC/internal/infra/dirio"
	"github.com/John-Robertt/CLMC/internal/infra/meta"
	"github.com/John-Robertt/CLMC/internal/ingest"
	"github.com/John-Robertt/CLMC/internal/player"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clmc",
		Short:         "本地课程库：入库、目录与播放管理",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.String("library", "", "库根目录（省略则必须存在 <cwd>/clmc.json）")
	pf.String("store", "", "元数据后端：sqlite|file（默认 sqlite）")
	pf.String("log-level", "", "日志级别：debug|info|warn|error（默认 info）")

	root.AddCommand(
		newIngestCmd(),
		newListCmd(),
		newShowCmd(),
		newPlayCmd(),
		newCompleteCmd(),
		newDeleteCmd(),
		newLimitCmd(),
		newStorageCmd(),
	)
	return root
}

// app 是一次命令执行期间的已装配依赖。
type app struct {
	eff   config.EffectiveConfig
	log   *zap.Logger
	blobs blob.Store
	cat   *catalog.Store

	closeMeta func() error
}

func (a *app) Close() {
	if a.closeMeta != nil {
		if err := a.closeMeta(); err != nil {
			a.log.Warn("关闭元数据后端失败", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

// setup 解析配置、构建日志与存储，装配 Catalog Store。
func setup(cmd *cobra.Command) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("读取当前目录失败：%w", err)
	}

	fl := cmd.Flags()
	library, _ := fl.GetString("library")
	store, _ := fl.GetString("store")
	logLevel, _ := fl.GetString("log-level")

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Library:     library,
		Store:       store,
		StoreSet:    fl.Changed("store"),
		LogLevel:    logLevel,
		LogLevelSet: fl.Changed("log-level"),
	})
	if err != nil {
		return nil, err
	}

	log, err := buildLogger(eff.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败：%w", err)
	}

	if err := os.MkdirAll(eff.Library, 0o755); err != nil {
		return nil, fmt.Errorf("创建库目录失败：%w", err)
	}

	blobs := blob.New(eff.Library)

	var (
		ms        meta.Store
		closeMeta func() error
	)
	switch eff.Store {
	case "file":
		ms = meta.NewFileStore(eff.Library)
	default:
		s, err := meta.OpenSQLite(filepath.Join(eff.Library, "meta.db"))
		if err != nil {
			return nil, fmt.Errorf("打开元数据库失败：%w", err)
		}
		ms = s
		closeMeta = s.Close
	}

	cat := catalog.New(ms, blobs, log)
	cat.LoadCourses()

	return &app{eff: eff, log: log, blobs: blobs, cat: cat, closeMeta: closeMeta}, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// stdout 保留给 JSON 输出契约，日志一律走 stderr。
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <folder>",
		Short: "把课程文件夹入库（<folder> 的子目录成为 Topic）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			root, err := dirio.OpenRoot(args[0])
			if err != nil {
				return err
			}

			progressW, interactive := pickProgressWriter()
			var obs ingest.Observer
			if interactive {
				obs = newProgressUI(progressW)
			}

			p := ingest.New(a.eff.Library, a.blobs, a.cat, a.log)
			course, report, err := p.Run(cmd.Context(), []dirio.Entry{root}, obs)
			if err != nil {
				emitIngestError(err)
				return err
			}

			emitIngestReport(course, report)
			if interactive {
				fmt.Fprintf(progressW, "report: %s\n",
					filepath.Join(a.eff.Library, "reports", course.ID+".json"))
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "列出库中全部课程",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			courses := a.cat.Courses()
			if !isTTY(os.Stdout) {
				return emitJSON(courses)
			}
			if len(courses) == 0 {
				fmt.Fprintln(os.Stdout, "库是空的；用 clmc ingest <folder> 入库一门课程")
				return nil
			}
			for _, c := range courses {
				fmt.Fprintf(os.Stdout, "%s  %3d%%  %s (topics=%d videos=%d)\n",
					c.ID, c.Progress, c.Title, len(c.Topics), c.TotalVideos(),
				)
			}
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <courseID>",
		Short: "显示课程详情（Topic 与视频清单）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			c, ok := a.cat.Course(args[0])
			if !ok {
				return fmt.Errorf("课程不存在：%s", args[0])
			}
			if !isTTY(os.Stdout) {
				return emitJSON(c)
			}

			fmt.Fprintf(os.Stdout, "%s (%d%%)\n", c.Title, c.Progress)
			if c.LastViewed != nil {
				fmt.Fprintf(os.Stdout, "上次观看: topic=%s video=%s\n", c.LastViewed.TopicID, c.LastViewed.VideoID)
			}
			for _, t := range c.Topics {
				fmt.Fprintf(os.Stdout, "\n%s  [%s]\n", t.Title, t.ID)
				for _, v := range t.Videos {
					mark := " "
					if v.Completed {
						mark = "x"
					}
					note := ""
					if v.Caption != "" {
						note = " +字幕"
					}
					fmt.Fprintf(os.Stdout, "  [%s] %s  [%s]%s\n", mark, v.Title, v.ID, note)
				}
				for _, r := range t.Resources {
					fmt.Fprintf(os.Stdout, "  (%s) %s  [%s]\n", r.Type, r.Title, r.ID)
				}
			}
			return nil
		},
	}
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play <courseID> [<topicID> <videoID>]",
		Short: "解析视频与字幕的本地文件路径（只给 courseID 则回到上次观看处）",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				return fmt.Errorf("topicID 与 videoID 必须同时给出")
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			courseID := args[0]
			topicID, videoID := "", ""
			if len(args) == 3 {
				topicID, videoID = args[1], args[2]
			} else {
				// 只给 courseID：lastViewed 仍有效则续播，否则回退到首 Topic 首视频。
				a.cat.SelectCourse(courseID)
				sel := a.cat.Current()
				if sel.Course == nil {
					return fmt.Errorf("课程不存在：%s", courseID)
				}
				if sel.Video == nil {
					return fmt.Errorf("课程没有可播放的视频：%s", courseID)
				}
				topicID, videoID = sel.Topic.ID, sel.Video.ID
			}

			s := player.NewSession(a.blobs, a.cat, a.log)
			defer s.Close()

			pb, err := s.Load(courseID, topicID, videoID)
			if err != nil {
				return err
			}

			captionPath := ""
			if pb.CaptionFile != nil {
				captionPath = pb.CaptionFile.Name()
			}
			if !isTTY(os.Stdout) {
				return emitJSON(map[string]any{
					"course_id": courseID,
					"topic_id":  topicID,
					"video":     pb.Video,
					"file":      pb.VideoFile.Name(),
					"caption":   captionPath,
				})
			}
			fmt.Fprintf(os.Stdout, "视频: %s\n", pb.Video.Title)
			fmt.Fprintf(os.Stdout, "文件: %s\n", pb.VideoFile.Name())
			if captionPath != "" {
				fmt.Fprintf(os.Stdout, "字幕: %s\n", captionPath)
			}
			return nil
		},
	}
}

func newCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <courseID> <topicID> <videoID>",
		Short: "翻转视频的完成标记",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			progress, ok := a.cat.ToggleVideoCompletion(args[0], args[1], args[2])
			if !ok {
				return fmt.Errorf("找不到视频：course=%s topic=%s video=%s", args[0], args[1], args[2])
			}
			if !isTTY(os.Stdout) {
				return emitJSON(map[string]any{"progress": progress})
			}
			fmt.Fprintf(os.Stdout, "课程进度: %d%%\n", progress)
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <courseID>",
		Short: "删除课程及其全部媒体文件",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cat.DeleteCourse(args[0]); err != nil {
				return err
			}
			if isTTY(os.Stdout) {
				fmt.Fprintf(os.Stdout, "已删除: %s\n", args[0])
			}
			return nil
		},
	}
}

func newLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "limit [bytes]",
		Short: "查看或设置存储上限（字节）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				n, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("bytes 必须是十进制整数：%q", args[0])
				}
				if err := a.cat.SetStorageLimit(n); err != nil {
					return err
				}
			}

			limit := a.cat.StorageLimit()
			if !isTTY(os.Stdout) {
				return emitJSON(map[string]any{"limit": limit})
			}
			fmt.Fprintf(os.Stdout, "存储上限: %d 字节\n", limit)
			return nil
		},
	}
}

func newStorageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "显示媒体存储占用",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			used, limit, err := a.cat.StorageUsage()
			if err != nil {
				return err
			}
			if !isTTY(os.Stdout) {
				return emitJSON(map[string]any{"used": used, "limit": limit})
			}
			percent := int64(0)
			if limit > 0 {
				percent = used * 100 / limit
			}
			fmt.Fprintf(os.Stdout, "占用: %d / %d 字节 (%d%%)\n", used, limit, percent)
			return nil
		},
	}
}

func emitIngestReport(course *domain.Course, report *domain.IngestReport) {
	if !isTTY(os.Stdout) {
		// stdout 非 TTY：stdout 必须且仅输出一个 IngestReport JSON（日志/摘要走 stderr）。
		_ = emitJSON(report)
		fmt.Fprintf(os.Stderr, "完成：topics=%d videos=%d resources=%d captions=%d skipped=%d\n",
			report.Summary.Topics, report.Summary.Videos, report.Summary.Resources,
			report.Summary.Captions, report.Summary.Skipped,
		)
		return
	}

	fmt.Fprintf(os.Stdout, "完成：%s [%s]\n", course.Title, course.ID)
	fmt.Fprintf(os.Stdout, "  topics=%d videos=%d resources=%d captions=%d skipped=%d\n",
		report.Summary.Topics, report.Summary.Videos, report.Summary.Resources,
		report.Summary.Captions, report.Summary.Skipped,
	)
	for _, sk := range report.Skipped {
		fmt.Fprintf(os.Stderr, "跳过 %s/%s: %s\n", sk.Topic, sk.Name, sk.Reason)
	}
}

func emitIngestError(err error) {
	if isTTY(os.Stdout) {
		return // RunE 的错误会走 stderr
	}
	_ = emitJSON(map[string]any{
		"error_code": ingest.CodeOf(err),
		"error":      err.Error(),
	})
}

func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}
