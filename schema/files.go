package schema

// FileInput is the metadata of one uploaded file, recorded alongside the
// presigned URL issuance. File metadata needs no additional validation.
type FileInput struct {
	LogName  string `json:"logName"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	Time     uint64 `json:"time"`
	Step     uint64 `json:"step"`
	FileSize uint64 `json:"fileSize"`
}

// Validate implements Input. All file metadata is accepted.
func (in FileInput) Validate() error {
	return nil
}

// Rows converts the input into exactly one enriched row.
func (in FileInput) Rows(e Enrichment) []FilesRow {
	return []FilesRow{{
		TenantID:    e.TenantID,
		ProjectName: e.ProjectName,
		RunID:       e.RunID,
		Time:        in.Time,
		Step:        in.Step,
		LogGroup:    LogGroup(in.LogName),
		LogName:     in.LogName,
		FileName:    in.FileName,
		FileType:    in.FileType,
		FileSize:    in.FileSize,
	}}
}

// FilesRow is one record in the mlop_files table.
type FilesRow struct {
	TenantID    string `json:"tenantId" ch:"tenantId"`
	ProjectName string `json:"projectName" ch:"projectName"`
	RunID       uint64 `json:"runId" ch:"runId"`
	Time        uint64 `json:"time" ch:"time"`
	Step        uint64 `json:"step" ch:"step"`
	LogGroup    string `json:"logGroup" ch:"logGroup"`
	LogName     string `json:"logName" ch:"logName"`
	FileName    string `json:"fileName" ch:"fileName"`
	FileType    string `json:"fileType" ch:"fileType"`
	FileSize    uint64 `json:"fileSize" ch:"fileSize"`
}
