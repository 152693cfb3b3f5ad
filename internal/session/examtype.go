package session

// Domain is one topic area of an exam type with its target share of the
// question set.
type Domain struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Weight        int    `json:"weight"` // percent, informational
	QuestionCount int    `json:"questionCount"`
}

// ExamType is a certification track: its domains, passing threshold, time
// limit and fixed question count.
type ExamType struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	DisplayName   string   `json:"displayName"`
	Domains       []Domain `json:"domains"`
	PassingScore  int      `json:"passingScore"` // percent
	TimeLimitMin  int      `json:"timeLimit"`    // minutes
	QuestionCount int      `json:"questionCount"`
}

// AWSCloudPractitioner is the default shipped exam type.
func AWSCloudPractitioner() ExamType {
	return ExamType{
		ID:          "aws-ccp",
		Name:        "AWS Certified Cloud Practitioner",
		DisplayName: "AWS CCP",
		Domains: []Domain{
			{ID: "cloud-concepts", Name: "Cloud Concepts", Weight: 24, QuestionCount: 16},
			{ID: "security", Name: "Security and Compliance", Weight: 30, QuestionCount: 20},
			{ID: "technology", Name: "Technology", Weight: 34, QuestionCount: 22},
			{ID: "billing", Name: "Billing and Pricing", Weight: 12, QuestionCount: 7},
		},
		PassingScore:  70,
		TimeLimitMin:  90,
		QuestionCount: 65,
	}
}
