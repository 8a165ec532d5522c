// Package asr 封装语音识别后端：本地 Whisper 服务与 OpenAI 云端转写
package asr

import (
	"context"
	"time"
)

// Transcript 一次识别调用的结果
type Transcript struct {
	Text    string        // 识别文本，服务端拒绝请求时为空
	Elapsed time.Duration // 调用耗时
}

// Backend 定义了语音识别后端的接口
type Backend interface {
	// Name 返回写入评估结果的后端标识
	Name() string
	// Transcribe 识别单个音频文件
	//
	// 网络错误与超时返回 *utils.BackendUnavailableError；
	// 服务端返回错误状态时返回空文本且 error 为 nil。
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}
