package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration level messages (info)
		"Capture started: %dx%d":                       "キャプチャを開始しました: %dx%d",
		"Capture started: %dx%d, recording size %dx%d": "キャプチャを開始しました: %dx%d, 録画サイズ %dx%d",
		"Capture stopped":                              "キャプチャを停止しました",
		"Capture saved: %s":                            "静止画を保存しました: %s",
		"Capture permission denied":                    "キャプチャの許可が得られませんでした",
		"Failed to acquire capture source: %v":         "キャプチャソースの取得に失敗しました: %v",
		"Failed to start capture: %v":                  "キャプチャの開始に失敗しました: %v",
		"Failed to stop capture source: %v":            "キャプチャソースの停止に失敗しました: %v",
		"Failed to stop recording: %v":                 "録画の停止に失敗しました: %v",
		"Failed to remove %s: %v":                      "%s の削除に失敗しました: %v",
		"Take capture failed: %v":                      "静止画の取得に失敗しました: %v",
		"Recorder complete: %s":                        "録画ファイルが完成しました: %s",
		"Recorder failed: %s: %v":                      "録画が失敗しました: %s: %v",
		"Recording failed on capture stop: %v":         "キャプチャ停止時に録画が失敗しました: %v",
		"Recording started: %s":                        "録画を開始しました: %s",
		"Failed to write response: %v":                 "レスポンスの書き込みに失敗しました: %v",

		// Frame bus (framebus component)
		"Consumer registered: %d active":      "コンシューマーを登録しました: %d 件",
		"Consumer unregistered: %d active":    "コンシューマーを解除しました: %d 件",
		"Failed to decode captured frame: %v": "キャプチャフレームのデコードに失敗しました: %v",

		// Preview (preview component)
		"Preview started: %d fps max, %v max delay": "プレビューを開始しました: 最大 %d fps, 最大遅延 %v",
		"Preview stopped":                        "プレビューを停止しました",
		"Failed to encode preview frame: %v":     "プレビューフレームのエンコードに失敗しました: %v",
		"Failed to send preview frame: %v":       "プレビューフレームの送信に失敗しました: %v",
		"Preview transport busy, packet dropped": "プレビューの送信が詰まっているためパケットを破棄しました",

		// Recorder (recorder component)
		"Recording started: %s (%dx%d, %d bps, %s)":                "録画を開始しました: %s (%dx%d, %d bps, %s)",
		"Recording stop requested, %d frames queued":               "録画の停止を要求しました。待機中のフレーム %d 件",
		"Recording abort requested":                                "録画の中断を要求しました",
		"Recording completed: %s (%d frames, %d samples)":          "録画が完了しました: %s (%d フレーム, %d サンプル)",
		"Recording aborted: %s":                                    "録画を中断しました: %s",
		"Recording failed: %v":                                     "録画に失敗しました: %v",
		"Recording setup failed: %v":                               "録画の準備に失敗しました: %v",
		"Failed to delete aborted recording %s: %v":                "中断した録画 %s の削除に失敗しました: %v",
		"Failed to delete failed recording %s: %v":                 "失敗した録画 %s の削除に失敗しました: %v",
		"Failed to submit frame to encoder: %v":                    "エンコーダーへのフレーム投入に失敗しました: %v",
		"Failed to write sample: %v":                               "サンプルの書き込みに失敗しました: %v",
		"Failed to signal end of stream: %v":                       "ストリーム終端の通知に失敗しました: %v",
		"No encoder input slot, frame dropped":                     "エンコーダーの入力枠がないためフレームを破棄しました",
		"Encoder format changed after muxer start, ignored":        "マルチプレクサ開始後のフォーマット変更を無視しました",
		"Encoder did not reach end of stream, tail may be missing": "エンコーダーが終端に達しませんでした。末尾が欠けている可能性があります",
		"Unexpected encoder output: %v":                            "想定外のエンコーダー出力: %v",
		"Muxer started: track %d, %dx%d":                           "マルチプレクサを開始しました: トラック %d, %dx%d",

		// Encoder selection (smartencoder component)
		"Encoder selected: %s (hardware: %v)":                      "エンコーダーを選択しました: %s (ハードウェア: %v)",
		"Encoder probe failed: %s: %v":                             "エンコーダーの確認に失敗しました: %s: %v",
		"Preferred encoder %s unavailable, falling back to %s":     "指定のエンコーダー %s が使えないため %s を使用します",
		"No hardware encoder available, using software encoder %s": "ハードウェアエンコーダーがないためソフトウェアエンコーダー %s を使用します",

		// ffmpeg process (h264encoder component)
		"ffmpeg started: %s %dx%d":             "ffmpegを起動しました: %s %dx%d",
		"ffmpeg did not exit in time, killing": "ffmpegが時間内に終了しないため強制終了します",
		"Failed to close ffmpeg input: %v":     "ffmpegの入力を閉じられませんでした: %v",

		// Chrome source (chromesource component)
		"Screencast started: %s (%dx%d)":                      "スクリーンキャストを開始しました: %s (%dx%d)",
		"Screencast stopped: %d frames received, %d replaced": "スクリーンキャストを停止しました: 受信 %d フレーム, 置換 %d",
		"Failed to decode screencast frame: %v":               "スクリーンキャストフレームのデコードに失敗しました: %v",
		"Failed to stop screencast: %v":                       "スクリーンキャストの停止に失敗しました: %v",

		// Preview viewers (wstransport component)
		"Preview viewer connected: %s (%d viewers)": "プレビュー閲覧者が接続しました: %s (%d 人)",
		"Preview viewer disconnected (%d viewers)":  "プレビュー閲覧者が切断しました (%d 人)",
		"Preview viewer read failed: %v":            "プレビュー閲覧者からの読み込みに失敗しました: %v",
		"Preview viewer write failed: %v":           "プレビュー閲覧者への書き込みに失敗しました: %v",
		"WebSocket upgrade failed: %v":              "WebSocketへの切り替えに失敗しました: %v",
	})
}
