// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package query

// Keyword tables used by the analyzer. All entries are lowercase; queries
// are lowercased before matching. Entries of three runes or fewer only
// match as whole words.

// complexityIndicators each add 0.5 to the complexity score.
var complexityIndicators = []string{
	"tại sao", "giải thích", "phân tích", "so sánh", "đánh giá",
	"nguyên nhân", "hậu quả", "tác động", "chiến lược", "giải pháp toàn diện",
}

type domainKeywords struct {
	domain   string
	keywords []string
}

// domainTable is ordered; ties resolve to the earliest domain.
var domainTable = []domainKeywords{
	{DomainTechnology, []string{
		"máy tính", "phần mềm", "công nghệ", "lập trình", "code", "ai", "ứng dụng",
		"python", "javascript", "golang", "function", "software", "programming",
	}},
	{DomainBusiness, []string{"kinh doanh", "marketing", "tài chính", "quản lý", "chiến lược", "đầu tư"}},
	{DomainScience, []string{"khoa học", "vật lý", "hóa học", "sinh học", "toán học", "nghiên cứu"}},
	{DomainHealth, []string{"sức khỏe", "y tế", "bệnh", "thuốc", "điều trị", "dinh dưỡng"}},
	{DomainEducation, []string{"giáo dục", "học tập", "trường học", "đại học", "kiến thức", "dạy"}},
	{DomainArts, []string{"nghệ thuật", "âm nhạc", "phim", "văn học", "thiết kế", "sáng tạo"}},
	{DomainLifestyle, []string{"lối sống", "du lịch", "ẩm thực", "thời trang", "thể thao"}},
}

type typePhrases struct {
	queryType QueryType
	phrases   []string
}

// queryTypeTable is checked in priority order; the first hit wins.
var queryTypeTable = []typePhrases{
	{TypeHowTo, []string{"làm thế nào", "làm sao", "cách"}},
	{TypeWhy, []string{"tại sao", "vì sao", "lý do"}},
	{TypeWhatIs, []string{"là gì", "định nghĩa", "giải thích"}},
	{TypeComparison, []string{"so sánh", "khác nhau", "giống nhau"}},
	{TypeExample, []string{"ví dụ", "minh họa"}},
	{TypeList, []string{"liệt kê", "danh sách", "các loại"}},
	{TypeOpinion, []string{"đánh giá", "nhận xét", "ý kiến"}},
	{TypePrediction, []string{"dự đoán", "tương lai", "sẽ"}},
}

// feedbackTypeTable tags performance cache entries.
var feedbackTypeTable = withoutType(queryTypeTable, TypePrediction)

func withoutType(table []typePhrases, drop QueryType) []typePhrases {
	out := make([]typePhrases, 0, len(table))
	for _, entry := range table {
		if entry.queryType != drop {
			out = append(out, entry)
		}
	}
	return out
}

var (
	listPhrases       = []string{"liệt kê", "danh sách", "các điểm"}
	stepPhrases       = []string{"từng bước", "chi tiết", "hướng dẫn"}
	examplePhrases    = []string{"ví dụ", "minh họa", "mẫu"}
	summaryPhrases    = []string{"tóm tắt", "tổng hợp", "tóm lược"}
	comparisonPhrases = []string{"so sánh", "đối chiếu", "khác biệt"}
	prosConsPhrases   = []string{"ưu điểm", "nhược điểm", "lợi ích", "hạn chế"}
	tablePhrases      = []string{"bảng", "biểu"}
	diagramPhrases    = []string{"sơ đồ", "biểu đồ", "hình vẽ"}
)

var codeIndicators = []string{
	"code", "mã", "lập trình", "function", "hàm", "class", "implement",
	"algorithm", "thuật toán", "script", "module", "debug", "fix", "sửa lỗi",
}

var reasoningIndicators = []string{
	"tại sao", "vì sao", "lý do", "giải thích", "phân tích",
	"đánh giá", "nhận định", "suy luận", "kết luận", "hệ quả",
}

var creativityIndicators = []string{
	"sáng tạo", "ý tưởng", "thiết kế", "tưởng tượng", "viết",
	"sáng tác", "kể chuyện", "hư cấu", "nghệ thuật", "độc đáo",
}

var (
	positiveWords = []string{"tốt", "hay", "tuyệt", "thích", "vui", "hạnh phúc", "hài lòng"}
	negativeWords = []string{"tệ", "kém", "buồn", "thất vọng", "khó chịu", "không thích"}
	urgencyWords  = []string{"khẩn cấp", "gấp", "ngay", "nhanh", "sớm", "càng sớm càng tốt"}
)

const vietnameseDiacritics = "áàảãạăắằẳẵặâấầẩẫậéèẻẽẹêếềểễệíìỉĩịóòỏõọôốồổỗộơớờởỡợúùủũụưứừửữựýỳỷỹỵđ"

// StopWords are ignored when extracting keywords from a query.
var StopWords = map[string]struct{}{
	"là": {}, "và": {}, "của": {}, "cho": {}, "trong": {}, "một": {}, "các": {}, "những": {},
	"về": {}, "với": {}, "có": {}, "được": {}, "không": {}, "như": {}, "từ": {}, "đến": {},
	"tôi": {}, "bạn": {}, "chúng": {}, "mình": {}, "để": {}, "này": {}, "khi": {}, "làm": {},
}
