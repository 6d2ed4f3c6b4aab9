package sample

import (
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/abrenfund/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// DemoPassword is the password of every seeded account.
const DemoPassword = "password123"

const (
	StudentEmail = "student@abrenfund.test"
	CreatorEmail = "creator@abrenfund.test"
	AdminEmail   = "admin@abrenfund.test"
)

type seedProject struct {
	title, summary, category string
	goal, raised             float64
	backers                  int
	status                   domain.ProjectStatus
	age, remaining           int // days
}

var seedProjects = []seedProject{
	{"Sustainable Agriculture Initiative", "Rooftop gardens and compost systems for the campus dining halls.", "Environment", 15000, 9750, 124, domain.ProjectActive, 21, 24},
	{"Clean Water Well Project", "Student engineers building a solar-powered well for a partner village.", "Community", 25000, 25000, 310, domain.ProjectCompleted, 60, 0},
	{"Robotics Club Competition Fund", "Parts and travel for the regional robotics championship.", "Technology", 8000, 3120, 47, domain.ProjectActive, 9, 36},
	{"Open Library Textbook Drive", "Free digital copies of first-year course textbooks.", "Education", 5000, 1250, 38, domain.ProjectActive, 4, 40},
	{"Campus Mental Health Week", "Workshops, speakers and peer support training.", "Health", 6000, 0, 0, domain.ProjectPending, 1, 45},
	{"Crypto Trading Bootcamp", "Weekend course on day trading strategies.", "Finance", 12000, 0, 0, domain.ProjectRejected, 14, 30},
}

func (b *Backend) seed() {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), b.cost)
	if err != nil {
		panic("sample: failed to hash demo password: " + err.Error())
	}
	now := b.clock.Now()
	day := 24 * time.Hour

	student := b.addAccount("Sarah Johnson", StudentEmail, domain.RoleStudent, hash, true)
	creator := b.addAccount("Michael Chen", CreatorEmail, domain.RoleCreator, hash, true)
	b.addAccount("Admin User", AdminEmail, domain.RoleAdmin, hash, true)
	pending := b.addAccount("Emily Davis", "emily@abrenfund.test", domain.RoleStudent, hash, false)
	pending.user.Status = domain.UserPending
	suspended := b.addAccount("James Wilson", "james@abrenfund.test", domain.RoleCreator, hash, true)
	suspended.user.Status = domain.UserSuspended

	for i, sp := range seedProjects {
		b.projects = append(b.projects, domain.Project{
			ID:          uuid.NewString(),
			Title:       sp.title,
			Summary:     sp.summary,
			Category:    sp.category,
			CreatorID:   creator.user.ID,
			CreatorName: creator.user.Name,
			Goal:        sp.goal,
			Raised:      sp.raised,
			Backers:     sp.backers,
			Status:      sp.status,
			CreatedAt:   now.Add(-time.Duration(sp.age)*day - time.Duration(i)*time.Minute),
			EndsAt:      now.Add(time.Duration(sp.remaining) * day),
		})
	}

	agri, well := b.projects[0], b.projects[1]
	b.wallets[student.user.ID].Balance = 250
	b.transactions[student.user.ID] = []domain.Transaction{
		{ID: uuid.NewString(), Kind: domain.TxDeposit, Amount: 300, Status: domain.TxCompleted, Description: "Wallet top-up", Method: string(domain.MethodCard), CreatedAt: now.Add(-10 * day)},
		{ID: uuid.NewString(), Kind: domain.TxContribution, Amount: 50, Status: domain.TxCompleted, ProjectID: agri.ID, Description: "Contribution to " + agri.Title, Method: string(domain.MethodWallet), CreatedAt: now.Add(-7 * day)},
		{ID: uuid.NewString(), Kind: domain.TxContribution, Amount: 25, Status: domain.TxPending, ProjectID: well.ID, Description: "Contribution to " + well.Title, Method: string(domain.MethodMobile), CreatedAt: now.Add(-2 * day)},
		{ID: uuid.NewString(), Kind: domain.TxRefund, Amount: 25, Status: domain.TxCompleted, ProjectID: well.ID, Description: "Refund from " + well.Title, Method: string(domain.MethodWallet), CreatedAt: now.Add(-1 * day)},
	}
	b.wallets[creator.user.ID].Balance = 1200

	b.notifications[student.user.ID] = []domain.Notification{
		{ID: uuid.NewString(), Title: "Campaign update", Message: agri.Title + " reached 65% of its goal.", Kind: domain.NotifyCampaign, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: uuid.NewString(), Title: "Payment received", Message: "Your contribution of $50.00 was processed.", Kind: domain.NotifyPayment, CreatedAt: now.Add(-7 * day)},
		{ID: uuid.NewString(), Title: "Welcome to AbrenFund", Message: "Discover campaigns from students across campus.", Kind: domain.NotifySystem, Read: true, CreatedAt: now.Add(-30 * day)},
	}
	b.notifications[creator.user.ID] = []domain.Notification{
		{ID: uuid.NewString(), Title: "New backer", Message: "Someone backed " + agri.Title + ".", Kind: domain.NotifyCampaign, CreatedAt: now.Add(-time.Hour)},
	}
}
