// Package main provides localization for the screencap CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Configuration": "設定",
		"Logging":       "ログ",
		"Capture":       "キャプチャ",
		"Encoding":      "エンコード",
		"Server":        "サーバー",
		"Output":        "出力先",

		// Root command
		"Capture a screen source for live preview and H.264 recording": "画面をキャプチャしてライブプレビューとH.264録画を行う",
		"YAML configuration file":                                      "YAML設定ファイル",
		"Log level (debug, info, warn, error)":                         "ログレベル (debug, info, warn, error)",
		"Suppress all log output":                                      "ログ出力をすべて抑制",

		// Commands
		"Serve the host bridge and the live preview":     "ホストブリッジとライブプレビューを提供",
		"Record the capture source to an MP4 file":       "キャプチャソースをMP4ファイルに録画",
		"Show the codec and track layout of an MP4 file": "MP4ファイルのコーデックとトラック構成を表示",
		"Show version information":                       "バージョン情報を表示",
		"FILE":                                           "ファイル",
		"screencap version %s":                           "screencap バージョン %s",
		"inspect requires a file argument":               "inspectにはファイルの指定が必要です",
		"Interrupted, shutting down...":                  "中断されました。終了しています...",

		// Capture flags
		"Frame source (pattern or chrome)":                    "フレームソース (pattern または chrome)",
		"Page to capture with the chrome source":              "chromeソースでキャプチャするページ",
		"Capture width in pixels":                             "キャプチャ幅（ピクセル）",
		"Capture height in pixels":                            "キャプチャ高さ（ピクセル）",
		"Capture frame rate":                                  "キャプチャのフレームレート",
		"Path to the Chrome executable":                       "Chrome実行ファイルのパス",
		"Show the browser window":                             "ブラウザウィンドウを表示",
		"Path to the ffmpeg executable":                       "ffmpeg実行ファイルのパス",
		"Preferred ffmpeg H.264 encoder":                      "優先するffmpegのH.264エンコーダー",
		"Fall back to libx264 when no hardware encoder works": "ハードウェアエンコーダーが使えない場合にlibx264を使用",

		// Serve flags
		"HTTP listen address":                   "HTTP待ち受けアドレス",
		"Start capturing immediately":           "起動直後にキャプチャを開始",
		"Serving on http://%s (preview at /ws)": "http://%s で待ち受け中（プレビューは /ws）",

		// Record flags
		"Output MP4 file path":               "出力MP4ファイルパス",
		"Recording duration":                 "録画時間",
		"Recording %s for %s...":             "%s に %s 録画しています...",
		"Output saved to %s (%d frames, %s)": "%s に保存しました（%d フレーム、%s）",

		"Write a recording summary (.md or .json)": "録画サマリーを書き出す (.md または .json)",
		"Summary saved to %s":                      "サマリーを %s に保存しました",

		// Recording summary
		"Recording Summary":      "録画サマリー",
		"Generated":              "作成日時",
		"Source":                 "ソース",
		"Item":                   "項目",
		"Value":                  "値",
		"Kind":                   "種類",
		"Capture Size":           "キャプチャサイズ",
		"Encoder":                "エンコーダー",
		"Hardware":               "ハードウェア",
		"Software":               "ソフトウェア",
		"Bitrate":                "ビットレート",
		"Frame Rate":             "フレームレート",
		"Key Frame Interval":     "キーフレーム間隔",
		"Video":                  "動画",
		"File":                   "ファイル",
		"Video Size":             "動画サイズ",
		"Frames Encoded":         "エンコード済みフレーム数",
		"Fragments":              "フラグメント数",
		"Codec":                  "コーデック",
		"Samples":                "サンプル数",
		"Duration":               "長さ",
		"File Size":              "ファイルサイズ",
		"Generated by screencap": "screencapで作成",

		// Inspect output
		"Codec: %s":                             "コーデック: %s",
		"Video tracks: %d":                      "映像トラック数: %d",
		"Size: %dx%d":                           "サイズ: %dx%d",
		"Fragmented: %t (%d fragments)":         "フラグメント化: %t（%d フラグメント）",
		"Samples: %d":                           "サンプル数: %d",
		"Duration: %s":                          "長さ: %s",
		"Decode this frame index to a PNG file": "指定したフレーム番号をPNGファイルに書き出す",
		"PNG path for --frame":                  "--frame の出力PNGパス",
		"Frame %d saved to %s":                  "フレーム %d を %s に保存しました",
	})
}
