package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusWaiting    Status = "Waiting"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// Terminal は状態が終端（Completed / Failed）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OperationKind はPDF処理の種別を表します。
type OperationKind string

const (
	OperationExtractText   OperationKind = "ExtractText"
	OperationConvertFormat OperationKind = "ConvertFormat"
	OperationMergePdf      OperationKind = "MergePdf"
	OperationDeletePage    OperationKind = "DeletePage"
)

// Valid は既知の操作種別かどうかを返します。
func (k OperationKind) Valid() bool {
	switch k {
	case OperationExtractText, OperationConvertFormat, OperationMergePdf, OperationDeletePage:
		return true
	}
	return false
}

// Record はジョブの現在状態を表し、ブローカーのメッセージ本体としても使われます。
// ステータスは Waiting → Processing → {Completed | Failed} の順にのみ遷移します。
type Record struct {
	ID             string        `json:"id"`
	FileName       string        `json:"fileName"`
	OperationKind  OperationKind `json:"operationKind"`
	TargetFormat   string        `json:"targetFormat,omitempty"`
	SourceFilePath string        `json:"sourceFilePath"`
	OutputFilePath string        `json:"outputFilePath"`
	AuxiliaryData  string        `json:"auxiliaryData,omitempty"`
	Status         Status        `json:"status"`
	Progress       int           `json:"progress"`
	RequestTime    time.Time     `json:"requestTime"`
	CompletionTime *time.Time    `json:"completionTime,omitempty"`
}

// SubmitRequest はジョブ投入時に呼び出し側が指定する項目です。
type SubmitRequest struct {
	FileName       string
	OperationKind  OperationKind
	TargetFormat   string
	SourceFilePath string
	OutputFilePath string
	AuxiliaryData  string
}
