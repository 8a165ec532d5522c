package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ccp-p/asr-media-cli/mic-eval/internal/controller"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/export"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/scanner"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

var (
	configFile = flag.String("config", "", "配置文件路径 (.json/.yaml)")
	envFile    = flag.String("env-file", ".env", "环境变量文件路径")
	samples    = flag.String("samples", "", "只评估指定样本，如 13,14,15")
	merge      = flag.Bool("merge", false, "与已有评估结果合并")
	watch      = flag.Bool("watch", false, "评估后监控样本目录，文件变化时重新评估")
	logLevel   = flag.String("log-level", "", "日志级别 (debug, info, warn, error)")
	logFile    = flag.String("log-file", "", "日志文件路径")
	topN       = flag.Int("top", 5, "摘要中每个排名显示的条数")
	historyID  = flag.Int("history", 0, "打印指定样本的历史记录后退出 (需配置 history_db)")
	historyMax = flag.Int("history-limit", 20, "历史记录最多显示的条数")
	saveConfig = flag.String("save-config", "", "将生效的配置写入文件后退出")
)

func main() {
	flag.Parse()

	loadEnvFile(*envFile)

	config, err := loadConfig(*configFile)
	if err != nil {
		color.Red("加载配置文件失败: %v", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		config.LogLevel = *logLevel
	}
	if *logFile != "" {
		config.LogFile = *logFile
	}
	if err := utils.InitLogger(config.LogLevel, config.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printWelcome()

	if err := config.Validate(); err != nil {
		logrus.Fatalf("配置无效: %v", err)
	}
	if utils.Log.IsLevelEnabled(logrus.DebugLevel) {
		config.PrintConfig()
	}

	if *saveConfig != "" {
		if err := config.SaveToFile(*saveConfig); err != nil {
			logrus.Fatalf("保存配置失败: %v", err)
		}
		color.Green("配置已保存: %s", *saveConfig)
		return
	}

	sampleIDs, err := scanner.ParseIDList(*samples)
	if err != nil {
		logrus.Fatalf("样本列表无效: %v", err)
	}

	if *historyID > 0 {
		showHistory(config, *historyID, *historyMax)
		return
	}

	if !checkDependencies(config) {
		logrus.Fatal("缺少必要的依赖项，无法继续")
	}

	ctrl, err := controller.NewController(config)
	if err != nil {
		logrus.Fatalf("初始化失败: %v", err)
	}
	defer ctrl.Cleanup()
	ctrl.HandleSignals()

	report, err := ctrl.Run(ctrl.Context(), controller.RunOptions{
		SampleIDs: sampleIDs,
		Merge:     *merge,
	})
	if err != nil {
		var malformed *utils.MalformedReportError
		if errors.As(err, &malformed) {
			color.Red("已有评估结果无法解析，合并已取消: %v", err)
		} else {
			color.Red("评估失败: %v", err)
		}
		ctrl.Cleanup()
		os.Exit(1)
	}

	export.PrintSummary(os.Stdout, report, *topN)
	ctrl.PrintStats()

	if *watch {
		if err := ctrl.Watch(ctrl.Context()); err != nil {
			logrus.Errorf("监控失败: %v", err)
			ctrl.Cleanup()
			os.Exit(1)
		}
	}

	fmt.Println("\n评估完成!")
}

func printWelcome() {
	fmt.Println()
	color.Cyan("================================")
	color.Cyan("   麦克风录音评估工具   ")
	color.Cyan("================================")
	fmt.Println()
}

func loadEnvFile(path string) {
	if path == "" || !utils.CheckFileExists(path) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		color.Yellow("警告: 加载环境变量文件失败: %v", err)
	}
}

func checkDependencies(config *models.Config) bool {
	fmt.Print("检查系统依赖... ")

	if err := utils.CheckFFmpeg(config.FFmpegCommand, config.FFprobeCommand); err != nil {
		color.Red("失败")
		logrus.Errorf("未检测到FFmpeg/FFprobe，请确保已安装并添加到系统路径: %v", err)
		return false
	}

	color.Green("通过")
	return true
}

func showHistory(config *models.Config, sampleID, limit int) {
	ctrl, err := controller.NewController(config)
	if err != nil {
		logrus.Fatalf("初始化失败: %v", err)
	}
	defer ctrl.Cleanup()

	if err := ctrl.ShowHistory(ctrl.Context(), sampleID, limit); err != nil {
		color.Red("读取历史记录失败: %v", err)
		ctrl.Cleanup()
		os.Exit(1)
	}
}

// loadConfig 指定了配置文件但无法加载时返回错误，不回退到默认配置
func loadConfig(path string) (*models.Config, error) {
	fmt.Print("加载配置... ")

	config := models.NewDefaultConfig()

	if path != "" {
		if err := config.LoadFromFile(path); err != nil {
			color.Red("失败")
			return nil, err
		}
		color.Green("成功")
	} else {
		color.Yellow("未指定配置文件，使用默认配置")
	}

	config.ApplyEnvOverrides()
	return config, nil
}
