package utils

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/mattn/go-shellwords"
)

// ParseCommand 将配置中的命令行拆分为参数列表
func ParseCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("解析命令失败 %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("命令为空")
	}
	return args, nil
}

// CheckTool 检查外部工具是否可用，command 可以带前缀参数
func CheckTool(command string) error {
	args, err := ParseCommand(command)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	args = append(args, "-version")
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s 不可用: %w", args[0], err)
	}
	return nil
}

// CheckFFmpeg 检查ffmpeg与ffprobe是否都可用
func CheckFFmpeg(ffmpegCommand, ffprobeCommand string) error {
	if err := CheckTool(ffmpegCommand); err != nil {
		return err
	}
	return CheckTool(ffprobeCommand)
}
